package gee

// ErrorResponse 是所有 AbortWithError 的统一 JSON 结构。
type ErrorResponse struct {
	Code      int    `json:"code"`                 //错误码
	Message   string `json:"message"`              //错误信息
	RequestId string `json:"request_id,omitempty"` //请求序号
}

func NewErrorResponse(c *Context, code int, message string) ErrorResponse {
	return ErrorResponse{
		Code:      code,
		Message:   message,
		RequestId: c.Req.Header.Get("X-Request-ID"), //没有就空
	}
}
