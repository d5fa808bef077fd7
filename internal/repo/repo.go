package repo

import (
	"context"
	"database/sql"
	"errors"

	"smsmock/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- messages ---

func (r Repo) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO messages(message_sid,provider,from_number,to_number,body,status,callback_url,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		m.MessageSid, m.Provider, m.FromNumber, m.ToNumber, nullable(m.Body), m.Status, nullableStringPtr(m.CallbackURL), m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMessage(ctx context.Context, sid string) (domain.Message, error) {
	var m domain.Message
	var body, callbackURL sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,message_sid,provider,from_number,to_number,body,status,callback_url,created_at,updated_at FROM messages WHERE message_sid=?`, sid).
		Scan(&m.ID, &m.MessageSid, &m.Provider, &m.FromNumber, &m.ToNumber, &body, &m.Status, &callbackURL, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if body.Valid {
		m.Body = body.String
	}
	if callbackURL.Valid {
		m.CallbackURL = &callbackURL.String
	}
	return m, nil
}

func (r Repo) UpdateMessageStatus(ctx context.Context, sid, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE messages SET status=?, updated_at=? WHERE message_sid=?`, status, updatedAt, sid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMessages(ctx context.Context, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,message_sid,provider,from_number,to_number,body,status,callback_url,created_at,updated_at FROM messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		var body, callbackURL sql.NullString
		if err := rows.Scan(&m.ID, &m.MessageSid, &m.Provider, &m.FromNumber, &m.ToNumber, &body, &m.Status, &callbackURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if body.Valid {
			m.Body = body.String
		}
		if callbackURL.Valid {
			m.CallbackURL = &callbackURL.String
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// --- calls ---

func (r Repo) InsertCall(ctx context.Context, c domain.Call) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO calls(call_sid,provider,from_number,to_number,status,callback_url,twiml_url,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		c.CallSid, c.Provider, c.FromNumber, c.ToNumber, c.Status, nullableStringPtr(c.CallbackURL), nullableStringPtr(c.TwimlURL), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCall(ctx context.Context, sid string) (domain.Call, error) {
	var c domain.Call
	var callbackURL, twimlURL sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,call_sid,provider,from_number,to_number,status,callback_url,twiml_url,created_at,updated_at FROM calls WHERE call_sid=?`, sid).
		Scan(&c.ID, &c.CallSid, &c.Provider, &c.FromNumber, &c.ToNumber, &c.Status, &callbackURL, &twimlURL, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if callbackURL.Valid {
		c.CallbackURL = &callbackURL.String
	}
	if twimlURL.Valid {
		c.TwimlURL = &twimlURL.String
	}
	return c, nil
}

func (r Repo) UpdateCallStatus(ctx context.Context, sid, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE calls SET status=?, updated_at=? WHERE call_sid=?`, status, updatedAt, sid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCalls(ctx context.Context, limit, offset int) ([]domain.Call, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,call_sid,provider,from_number,to_number,status,callback_url,twiml_url,created_at,updated_at FROM calls ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Call
	for rows.Next() {
		var c domain.Call
		var callbackURL, twimlURL sql.NullString
		if err := rows.Scan(&c.ID, &c.CallSid, &c.Provider, &c.FromNumber, &c.ToNumber, &c.Status, &callbackURL, &twimlURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if callbackURL.Valid {
			c.CallbackURL = &callbackURL.String
		}
		if twimlURL.Valid {
			c.TwimlURL = &twimlURL.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- delivery events ---

func (r Repo) InsertDeliveryEvent(ctx context.Context, e domain.DeliveryEvent) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO delivery_events(message_sid,call_sid,event_type,status,created_at) VALUES (?,?,?,?,?)`,
		nullableStringPtr(e.MessageSid), nullableStringPtr(e.CallSid), e.EventType, e.Status, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListDeliveryEvents(ctx context.Context, messageSid, callSid string, limit int) ([]domain.DeliveryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,message_sid,call_sid,event_type,status,created_at FROM delivery_events`
	var args []any
	switch {
	case messageSid != "":
		query += ` WHERE message_sid=?`
		args = append(args, messageSid)
	case callSid != "":
		query += ` WHERE call_sid=?`
		args = append(args, callSid)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DeliveryEvent
	for rows.Next() {
		var e domain.DeliveryEvent
		var msgSid, cSid sql.NullString
		if err := rows.Scan(&e.ID, &msgSid, &cSid, &e.EventType, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		if msgSid.Valid {
			e.MessageSid = &msgSid.String
		}
		if cSid.Valid {
			e.CallSid = &cSid.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- callback logs ---

func (r Repo) InsertCallbackLog(ctx context.Context, l domain.CallbackLog) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO callback_logs(target_url,payload,status_code,response_body,attempt_number,outcome,created_at) VALUES (?,?,?,?,?,?,?)`,
		l.TargetURL, l.Payload, nullableIntPtr(l.StatusCode), nullable(l.ResponseBody), l.AttemptNumber, l.Outcome, l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetCallbackLog(ctx context.Context, id int64) (domain.CallbackLog, error) {
	var l domain.CallbackLog
	var statusCode sql.NullInt64
	var responseBody sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,target_url,payload,status_code,response_body,attempt_number,outcome,created_at FROM callback_logs WHERE id=?`, id).
		Scan(&l.ID, &l.TargetURL, &l.Payload, &statusCode, &responseBody, &l.AttemptNumber, &l.Outcome, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if statusCode.Valid {
		code := int(statusCode.Int64)
		l.StatusCode = &code
	}
	if responseBody.Valid {
		l.ResponseBody = responseBody.String
	}
	return l, nil
}

func (r Repo) ListCallbackLogs(ctx context.Context, limit, offset int) ([]domain.CallbackLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,target_url,payload,status_code,response_body,attempt_number,outcome,created_at FROM callback_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CallbackLog
	for rows.Next() {
		var l domain.CallbackLog
		var statusCode sql.NullInt64
		var responseBody sql.NullString
		if err := rows.Scan(&l.ID, &l.TargetURL, &l.Payload, &statusCode, &responseBody, &l.AttemptNumber, &l.Outcome, &l.CreatedAt); err != nil {
			return nil, err
		}
		if statusCode.Valid {
			code := int(statusCode.Int64)
			l.StatusCode = &code
		}
		if responseBody.Valid {
			l.ResponseBody = responseBody.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// --- statistics and clear operations ---

func (r Repo) Statistics(ctx context.Context) (domain.Statistics, error) {
	var s domain.Statistics
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.Messages); err != nil {
		return s, err
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&s.Calls); err != nil {
		return s, err
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_logs`).Scan(&s.Callbacks); err != nil {
		return s, err
	}
	return s, nil
}

// ClearMessages deletes all messages and their delivery events,
// returning the number of messages deleted.
func (r Repo) ClearMessages(ctx context.Context) (int, error) {
	var count int
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_events WHERE message_sid IS NOT NULL`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// ClearCalls deletes all calls and their delivery events.
func (r Repo) ClearCalls(ctx context.Context) (int, error) {
	var count int
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&count); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_events WHERE call_sid IS NOT NULL`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calls`); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// ClearCallbacks deletes all callback logs.
func (r Repo) ClearCallbacks(ctx context.Context) (int, error) {
	var count int
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_logs`).Scan(&count); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM callback_logs`); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// ClearAll deletes everything and returns the pre-deletion counts.
func (r Repo) ClearAll(ctx context.Context) (domain.Statistics, error) {
	var s domain.Statistics
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.Messages); err != nil {
		return s, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&s.Calls); err != nil {
		return s, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_logs`).Scan(&s.Callbacks); err != nil {
		return s, err
	}
	for _, stmt := range []string{
		`DELETE FROM delivery_events`,
		`DELETE FROM callback_logs`,
		`DELETE FROM messages`,
		`DELETE FROM calls`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return s, err
		}
	}
	return s, tx.Commit()
}
