// Package timeout defines centralized timeout constants for upstream calls.
// Package timeout 定义上游调用的集中式超时常量。
package timeout

import "time"

// Upstream call timeout constants.
// 上游调用超时常量。
const (
	// MetadataTimeout bounds a single metadata catalogue request.
	// MetadataTimeout 是单次影片元数据请求的超时时间。
	MetadataTimeout = 8 * time.Second

	// OracleTimeout bounds one completion request to the taste oracle.
	// OracleTimeout 是单次 Oracle 补全请求的超时时间。
	OracleTimeout = 25 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// TasteUpdateTimeout bounds the detached taste update that follows a saved review.
	// TasteUpdateTimeout 是评论保存后异步更新口味向量的超时时间。
	TasteUpdateTimeout = 45 * time.Second

	// RequestTimeout bounds a whole recommendation request.
	// RequestTimeout 是单次推荐请求的整体超时时间。
	RequestTimeout = 90 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
