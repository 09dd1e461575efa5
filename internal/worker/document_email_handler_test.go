package worker

import (
	"errors"
	"strings"
	"testing"

	"samaj/internal/errcode"
	"samaj/internal/tasks"
)

func TestErrorNotifyHidesInternalDetail(t *testing.T) {
	payload := tasks.DocumentEmailPayload{
		MemberID:      7,
		DocType:       "id_card",
		CorrelationID: "cid-1",
	}
	cause := errors.New("dial tcp 10.0.0.3:9000: connect: connection refused")

	msg := errorNotify(7, payload, cause)
	if msg.Status != "error" || msg.ErrorCode != errcode.SystemError {
		t.Fatalf("notify = %+v, want error status with system code", msg)
	}
	if msg.ErrorMessage == "" {
		t.Fatal("notify needs a user-facing message")
	}
	// 底层错误文本不得外泄到通知通道。
	for _, leak := range []string{"10.0.0.3", "connection refused", "dial tcp"} {
		if strings.Contains(msg.ErrorMessage, leak) {
			t.Fatalf("notify leaks internal error text: %q", msg.ErrorMessage)
		}
	}
}

func TestErrorNotifyMapsMissingObject(t *testing.T) {
	payload := tasks.DocumentEmailPayload{MemberID: 7, DocType: "id_card"}
	cause := errors.New("The specified key does not exist.")

	msg := errorNotify(7, payload, cause)
	if msg.ErrorCode != errcode.ResourceMissing {
		t.Fatalf("error code = %d, want %d", msg.ErrorCode, errcode.ResourceMissing)
	}
	if msg.ErrorMessage != errcode.Message(errcode.ResourceMissing) {
		t.Fatalf("message = %q, want the generic missing-resource text", msg.ErrorMessage)
	}
}
