package domain

import "errors"

// 接收链路的丢弃原因。除 ErrPersistenceFailure 外都只记录日志，不向传输层报错。
var (
	ErrMalformedAddress    = errors.New("malformed address")
	ErrUnregisteredMailbox = errors.New("unregistered mailbox")
	ErrPolicyRejected      = errors.New("sender rejected by policy")
	ErrPersistenceFailure  = errors.New("persistence failure")
)

// 读取链路
var (
	ErrUnknownFeed = errors.New("unknown feed")
)

// 注册与设置
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrMailboxTaken        = errors.New("mailbox name already taken")
	ErrMailboxNameInvalid  = errors.New("invalid mailbox name")
	ErrMailboxNameTooShort = errors.New("mailbox name too short")
	ErrMailboxNameTooLong  = errors.New("mailbox name too long")
	ErrMailboxNameReserved = errors.New("mailbox name is reserved")
	ErrOwnerHasAccount     = errors.New("owner already has an account")
	ErrOwnerRequired       = errors.New("owner identity required")
	ErrInvalidPolicyMode   = errors.New("invalid policy mode")
	ErrInvalidListKind     = errors.New("invalid list kind")
)
