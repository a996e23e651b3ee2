package notify

// CodeSender 定义确认码投递接口。
type CodeSender interface {
	// SendConfirmationCode 向指定邮箱发送注册确认码。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   code: 明文确认码
	SendConfirmationCode(toEmail string, code string) error
}
