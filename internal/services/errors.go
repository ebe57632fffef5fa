package services

import "fmt"

// CredentialError 凭证无法解析，同步在任何上游 I/O 之前中止
type CredentialError struct {
	AccountID string
	Err       error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error for account %s: %v", e.AccountID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// UpstreamError 上游平台接口失败（含限流），整个同步尝试被放弃
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
