package model

// Result codes carried in the response envelope.
const (
	CodeSuccess         = 200
	CodeFailure         = 500
	CodeUnauthenticated = 401
	CodeTooManyRequests = 429
)

// Result is the JSON envelope every endpoint answers with.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func Success(data any) Result { return Result{Code: CodeSuccess, Msg: "success", Data: data} }

func Failure(msg string) Result { return Result{Code: CodeFailure, Msg: msg} }

func Unauthenticated(msg string) Result { return Result{Code: CodeUnauthenticated, Msg: msg} }
