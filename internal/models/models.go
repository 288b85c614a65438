package models

// RawRecord is an unvalidated record as delivered by the external source.
// Values are whatever the JSON body carried; numeric values are decoded as
// json.Number so integers can be told apart from floats during validation.
type RawRecord map[string]interface{}

// RequiredFields lists the fields every record must carry, in the order
// they are checked. Each must hold a string or an integer.
var RequiredFields = []string{"id", "title", "body", "userId"}

// NormalizedRecord is a validated, field-normalized record ready for
// persistence. ID is the partition key and Timestamp the sort key, so
// re-processing the same source record yields a new item rather than a
// silent overwrite.
type NormalizedRecord struct {
	ID          string `json:"id" dynamodbav:"id" bson:"id"`
	Timestamp   string `json:"timestamp" dynamodbav:"timestamp" bson:"timestamp"`
	Title       string `json:"title" dynamodbav:"title" bson:"title"`
	Body        string `json:"body" dynamodbav:"body" bson:"body"`
	UserID      string `json:"user_id" dynamodbav:"user_id" bson:"user_id"`
	SourceURL   string `json:"source_url" dynamodbav:"source_url" bson:"source_url"`
	ProcessedAt string `json:"processed_at" dynamodbav:"processed_at" bson:"processed_at"`
}

// ProcessOutcome is the result of validating and transforming a raw batch.
// Accepted preserves the input order of the surviving records.
type ProcessOutcome struct {
	Accepted []NormalizedRecord
	Rejected int
}

// RunResult is what a single pipeline invocation reports back to its
// invoker. StatusCode is 200 on success and 500 on failure.
type RunResult struct {
	StatusCode int     `json:"statusCode"`
	Message    string  `json:"message"`
	Fetched    int     `json:"fetched"`
	Accepted   int     `json:"accepted"`
	Rejected   int     `json:"rejected"`
	Stored     int     `json:"stored"`
	Attempts   int     `json:"attempts,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Success reports whether the run completed without a fatal error.
func (r RunResult) Success() bool {
	return r.StatusCode == 200
}
