package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeDocumentEmail = "email:document"
)

// DocumentEmailPayload 描述一封带文档附件的邮件任务。
// 负载只带会员 ID 与文档类型，PDF 由消费端按当前数据渲染。
type DocumentEmailPayload struct {
	MemberID      uint   `json:"member_id"`
	DocType       string `json:"doc_type"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	CorrelationID string `json:"correlation_id"`
}

// NewDocumentEmailTask 构造一个新的文档邮件任务。
func NewDocumentEmailTask(p DocumentEmailPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDocumentEmail, payload), nil
}
