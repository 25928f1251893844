package dto

// InboundEmail is the subset of the inbound parse webhook payload used for
// reply tracking. Fields arrive as multipart form values.
type InboundEmail struct {
	From    string `form:"from" json:"from"`
	To      string `form:"to" json:"to"`
	Subject string `form:"subject" json:"subject"`
	Text    string `form:"text" json:"text"`
	HTML    string `form:"html" json:"html"`
}

// InboundResult reports which supplier a reply was matched to and whether an
// automatic answer was queued.
type InboundResult struct {
	SupplierID     string `json:"supplier_id"`
	SearchID       string `json:"search_id"`
	ThreadID       string `json:"thread_id"`
	AutoReply      bool   `json:"auto_reply"`
	AutoReplyJobID string `json:"auto_reply_job_id,omitempty"`
}
