// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorUnauthorized  = "UNAUTHORIZED"

	// 角色相关错误
	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"

	// 对话回合相关错误
	ErrorMessageEmpty       = "MESSAGE_EMPTY"
	ErrorReplyInFlight      = "REPLY_IN_FLIGHT"
	ErrorDateAlreadyDecided = "DATE_ALREADY_DECIDED"
	ErrorTurnFailed         = "TURN_FAILED"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorConnectionFailed      = "CONNECTION_FAILED"
	ErrorRequestTimeout        = "REQUEST_TIMEOUT"

	// 配置相关错误
	ErrorAPIKeyMissing        = "API_KEY_MISSING"
	ErrorPersonaScriptMissing = "PERSONA_SCRIPT_MISSING"
	ErrorConfigUnhealthy      = "CONFIG_UNHEALTHY"
)
