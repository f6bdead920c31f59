package response

import "github.com/gin-gonic/gin"

// Stages reported by the viva endpoints. The client moves its UI on these.
const (
	StageMCQsReady     = "mcqs_ready"
	StageExamCompleted = "exam_completed"
	StageError         = "error"
)

// StageResponse is the envelope of the viva endpoints, which predate the
// standard Response envelope and are consumed by the existing web client.
type StageResponse struct {
	Status  string      `json:"status"`
	Stage   string      `json:"stage"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// Staged sends a success envelope for stage.
func Staged(c *gin.Context, statusCode int, stage string, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(statusCode, StageResponse{Status: "success", Stage: stage, Data: data})
}

// StagedFail sends an error envelope carrying the code's message.
func StagedFail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, StageResponse{
		Status:  "error",
		Stage:   StageError,
		Data:    gin.H{"code": code},
		Message: GetMessage(code),
	})
}

// StagedFailWithFields sends an error envelope with field-level details.
func StagedFailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, StageResponse{
		Status:  "error",
		Stage:   StageError,
		Data:    gin.H{"code": code, "fields": fields},
		Message: GetMessage(code),
	})
}
