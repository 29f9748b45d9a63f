package constants

// Client-facing messages for failures raised outside the mapping core
const (
	MsgTooManyRequests     = "Too many requests"
	MsgMissingBearerToken  = "Unauthorized. Missing bearer token"
	MsgInvalidBearerToken  = "Unauthorized. Invalid bearer token"
	MsgInvalidMultipart    = "Invalid multipart upload"
	MsgMissingUploadFile   = "Missing upload field 'file'"
	MsgInternalServerError = "internal server error"
)
