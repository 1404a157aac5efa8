package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldSessionState = "session_state"
	FieldUserID       = "user_id"
	FieldRoute        = "route"
	FieldRedirect     = "redirect"
	FieldExpenseCount = "expense_count"
	FieldRecordID     = "record_id"
	FieldHistorySize  = "history_size"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentSession    = "session"
	ComponentGateway    = "gateway"
	ComponentRouter     = "router"
	ComponentFinance    = "finance"
	ComponentDerived    = "derived"
	ComponentHistory    = "history"
	ComponentDashboard  = "dashboard"
	ComponentStorage    = "storage"
	ComponentCredential = "credential"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
)

// Operations defines standard operation names
const (
	OpResolve    = "resolve"
	OpLogin      = "login"
	OpSignup     = "signup"
	OpSocial     = "social_login"
	OpLogout     = "logout"
	OpInvalidate = "invalidate"
	OpRequest    = "request"
	OpAnalyze    = "analyze"
	OpRecord     = "record"
	OpRestore    = "restore"
	OpDetect     = "detect_recurring"
	OpChat       = "chat"
	OpImport     = "import"
	OpExport     = "export"
	OpPublish    = "publish"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeServer        = "server_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSession adds session state and user fields
func (f LogFields) WithSession(state, userID string) LogFields {
	f[FieldSessionState] = state
	if userID != "" {
		f[FieldUserID] = userID
	}
	return f
}

// WithRequest adds outgoing request fields
func (f LogFields) WithRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

// WithResponse adds response fields
func (f LogFields) WithResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode > 0 && statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
