package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如会员照片缺失但证件仍可生成）
// - 5xxx：系统错误（需要中断流程）
const (
	OK              = 0
	ResourceMissing = 4004
	SystemError     = 5000
)

// Message 返回可直接下发给客户端的文案。
// 内部错误细节只进日志，不进通知。
func Message(code int) string {
	switch code {
	case OK:
		return ""
	case ResourceMissing:
		return "a required resource is missing"
	default:
		return "document delivery failed, please try again later"
	}
}
