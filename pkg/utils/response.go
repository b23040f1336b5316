package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// 响应状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// 业务错误码
const (
	CodeOK                  = "ok"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeDuplicateEntry      = "DUPLICATE_ENTRY"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// APIResponse 统一的接口响应结构
type APIResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 构造成功响应
func Success(message string) APIResponse {
	return APIResponse{Status: StatusSuccess, Code: CodeOK, Message: message}
}

// SuccessWithData 构造携带数据的成功响应
func SuccessWithData(message string, data any) APIResponse {
	resp := Success(message)
	resp.Data = data
	return resp
}

// Error 构造错误响应
func Error(code, message string) APIResponse {
	return APIResponse{Status: StatusError, Code: code, Message: message}
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RespondOK 发送成功响应
func RespondOK(w http.ResponseWriter, message string, data any) {
	RespondJSON(w, http.StatusOK, SuccessWithData(message, data))
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, Error(code, message))
}

// RespondUnauthorized 会话缺失或失效
func RespondUnauthorized(w http.ResponseWriter) {
	RespondError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized, please login again")
}

// RespondInternalError 记录错误并返回 500
func RespondInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("internal server error")
	RespondError(w, http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
}
