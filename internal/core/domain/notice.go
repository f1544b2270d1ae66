package domain

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-facing message, shown as a toast by the client.
type Notice struct {
	UserID    string      `json:"userId,omitempty"`
	Level     NoticeLevel `json:"level"`
	Operation string      `json:"operation"`
	Message   string      `json:"message"`
}
