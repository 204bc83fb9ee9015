// Package ledger is the durable audit trail: one row per completed
// execution, plus deduplicated leads and sent emails produced by the
// automations. SQLite by default, Postgres behind a DSN. Timestamps are
// stored as RFC 3339 text and row keys are UUIDs so the schema works
// unmodified on both drivers.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger wraps the database handle. Safe for concurrent use; database/sql
// serializes access per connection.
type Ledger struct {
	db     *sql.DB
	driver string
}

// ExecutionRecord is one completed single or chained automation call.
type ExecutionRecord struct {
	ID             string
	AutomationName string
	UserInput      string
	Parameters     map[string]any
	Status         string
	Result         string
	Error          string
	ExecutionTime  time.Duration
	CreatedAt      time.Time
}

// Lead is a deduplicated contact keyed by email.
type Lead struct {
	ID        string
	Name      string
	Email     string
	Company   string
	Title     string
	Industry  string
	Source    string
	CreatedAt time.Time
}

// SentEmail is one outbound email recorded by an automation.
type SentEmail struct {
	ID        string
	LeadID    string
	Recipient string
	Subject   string
	Body      string
	Status    string
	CreatedAt time.Time
}

// Stats summarizes the ledger's contents.
type Stats struct {
	TotalExecutions  int
	Successful       int
	Failed           int
	TotalLeads       int
	TotalEmailsSent  int
	FirstExecutionAt time.Time
	LastExecutionAt  time.Time
}

// RecordExecution appends one execution row. ID and CreatedAt are
// filled in when unset.
func (l *Ledger) RecordExecution(rec *ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		params = []byte("{}")
	}
	_, err = l.db.Exec(l.rebind(
		`INSERT INTO executions
		 (id, automation_name, user_input, parameters, status, result, error, execution_time_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.AutomationName, rec.UserInput, string(params), rec.Status,
		rec.Result, rec.Error, rec.ExecutionTime.Seconds(), rec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ledger: record execution: %w", err)
	}
	return nil
}

// RecentExecutions returns up to limit rows, newest first.
func (l *Ledger) RecentExecutions(limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(l.rebind(
		`SELECT id, automation_name, user_input, parameters, status, result, error, execution_time_seconds, created_at
		 FROM executions ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec            ExecutionRecord
			params         string
			result, errMsg sql.NullString
			seconds        float64
			createdAt      string
		)
		if err := rows.Scan(&rec.ID, &rec.AutomationName, &rec.UserInput, &params,
			&rec.Status, &result, &errMsg, &seconds, &createdAt); err != nil {
			return nil, fmt.Errorf("ledger: scan execution: %w", err)
		}
		rec.Result = result.String
		rec.Error = errMsg.String
		rec.ExecutionTime = time.Duration(seconds * float64(time.Second))
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = t
		}
		if json.Unmarshal([]byte(params), &rec.Parameters) != nil {
			rec.Parameters = map[string]any{}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertLead inserts a lead or returns the existing row for its email.
// Email is the dedupe key; a conflict keeps the original row untouched.
func (l *Ledger) UpsertLead(lead *Lead) (*Lead, error) {
	if lead.Email == "" {
		return nil, fmt.Errorf("ledger: lead email is required")
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(l.rebind(
		`INSERT INTO leads (id, name, email, company, title, industry, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`),
		lead.ID, lead.Name, lead.Email, lead.Company, lead.Title, lead.Industry,
		lead.Source, lead.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("ledger: upsert lead: %w", err)
	}
	return l.leadByEmail(lead.Email)
}

func (l *Ledger) leadByEmail(email string) (*Lead, error) {
	var (
		lead                                   Lead
		createdAt                              string
		name, company, title, industry, source sql.NullString
	)
	err := l.db.QueryRow(l.rebind(
		`SELECT id, name, email, company, title, industry, source, created_at
		 FROM leads WHERE email = ?`), email).
		Scan(&lead.ID, &name, &lead.Email, &company, &title, &industry, &source, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("ledger: lead by email: %w", err)
	}
	lead.Name = name.String
	lead.Company = company.String
	lead.Title = title.String
	lead.Industry = industry.String
	lead.Source = source.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		lead.CreatedAt = t
	}
	return &lead, nil
}

// Leads returns up to limit leads, newest first.
func (l *Ledger) Leads(limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(l.rebind(
		`SELECT id, name, email, company, title, industry, source, created_at
		 FROM leads ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var (
			lead                                   Lead
			createdAt                              string
			name, company, title, industry, source sql.NullString
		)
		if err := rows.Scan(&lead.ID, &name, &lead.Email, &company, &title, &industry, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("ledger: scan lead: %w", err)
		}
		lead.Name = name.String
		lead.Company = company.String
		lead.Title = title.String
		lead.Industry = industry.String
		lead.Source = source.String
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			lead.CreatedAt = t
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// RecordEmail appends one sent-email row.
func (l *Ledger) RecordEmail(e *SentEmail) error {
	if e.Recipient == "" {
		return fmt.Errorf("ledger: email recipient is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = "sent"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var leadID any
	if e.LeadID != "" {
		leadID = e.LeadID
	}
	_, err := l.db.Exec(l.rebind(
		`INSERT INTO sent_emails (id, lead_id, recipient, subject, body, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, leadID, e.Recipient, e.Subject, e.Body, e.Status, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ledger: record email: %w", err)
	}
	return nil
}

// Stats aggregates ledger totals for the db stats command.
func (l *Ledger) Stats() (*Stats, error) {
	s := &Stats{}
	err := l.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0),
		        COALESCE(MIN(created_at), ''),
		        COALESCE(MAX(created_at), '')
		 FROM executions`).Scan(&s.TotalExecutions, &s.Successful, &s.Failed, &minMaxScanner{&s.FirstExecutionAt}, &minMaxScanner{&s.LastExecutionAt})
	if err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM leads`).Scan(&s.TotalLeads); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM sent_emails`).Scan(&s.TotalEmailsSent); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	return s, nil
}

// minMaxScanner parses an RFC 3339 aggregate or leaves the zero time.
type minMaxScanner struct {
	t *time.Time
}

func (m *minMaxScanner) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*m.t = t
	}
	return nil
}
