package docstore

import "fmt"

// ValidateMessage checks a message payload at the adapter boundary so
// internal components operate on a fully-typed shape.
func ValidateMessage(msg *Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrValidation)
	}
	if msg.SenderID == "" {
		return fmt.Errorf("%w: missing sender id", ErrValidation)
	}
	if msg.ClientID == "" {
		return fmt.Errorf("%w: missing client id", ErrValidation)
	}
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return fmt.Errorf("%w: message has neither text nor attachments", ErrValidation)
	}
	for i := range msg.Attachments {
		if err := validateAttachment(&msg.Attachments[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAttachment(a *Attachment) error {
	if a.URL == "" {
		return fmt.Errorf("%w: attachment without url", ErrValidation)
	}
	switch a.Kind {
	case "", AttachmentImage, AttachmentFile:
		return nil
	default:
		return fmt.Errorf("%w: unknown attachment kind %q", ErrValidation, a.Kind)
	}
}
