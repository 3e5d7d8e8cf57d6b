package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                  = 0
	CodeBadRequest          = 40000
	CodeMessageNotFound     = 40401
	CodeGenerationCancelled = 49900
	CodeInternalServer      = 50000
)

// StatusClientClosedRequest mirrors the nginx convention for a request the
// client abandoned. Used when the caller cancels a generation in flight.
const StatusClientClosedRequest = 499

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
