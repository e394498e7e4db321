package protocol

type MessageType uint8

const (
	MessageTypeAnnounce   MessageType = 1
	MessageTypeEnvelope   MessageType = 2
	MessageTypeVerdict    MessageType = 3
	MessageTypePartialKey MessageType = 4
	MessageTypeCipher     MessageType = 5
	MessageTypeClose      MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeAnnounce:
		return "ANNOUNCE"
	case MessageTypeEnvelope:
		return "ENVELOPE"
	case MessageTypeVerdict:
		return "VERDICT"
	case MessageTypePartialKey:
		return "PARTIAL_KEY"
	case MessageTypeCipher:
		return "CIPHER"
	case MessageTypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (t MessageType) valid() bool {
	return t >= MessageTypeAnnounce && t <= MessageTypeClose
}
