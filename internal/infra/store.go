// Package infra implements infrastructure concerns (storage, keys,
// foreground probing, overlay presentation).
package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

const storeDBName = "gatekeeper.db"

// Store is the single encrypted SQLite database behind every persistence
// interface: rules, categories, usage, focus session, settings, audit.
// All state is single-device, single-user; the unlock password lives
// only here, encrypted at rest.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the encrypted store. The key is used as
// the SQLCipher passphrase via PRAGMA key.
func NewStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		target_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (target_key, kind)
	);

	CREATE TABLE IF NOT EXISTS categories (
		app_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		whitelisted INTEGER NOT NULL DEFAULT 0,
		manual_override INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS usage (
		app_id TEXT NOT NULL,
		day TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (app_id, day)
	);

	CREATE TABLE IF NOT EXISTS focus_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		app_id TEXT NOT NULL,
		allowed INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log (ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- domain.RuleStore implementation ---

// PutRule inserts or replaces the rule for (target, kind).
func (s *Store) PutRule(target domain.RuleTarget, rule domain.Rule) error {
	payload, err := encodeRule(rule)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO rules (target_key, kind, version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		target.Key(), string(rule.Kind()), ruleCodecVersion, string(payload), time.Now().Unix(),
	)
	return err
}

// RemoveRule deletes the rule of the given kind for the target.
func (s *Store) RemoveRule(target domain.RuleTarget, kind domain.RuleKind) error {
	_, err := s.db.Exec(`DELETE FROM rules WHERE target_key = ? AND kind = ?`,
		target.Key(), string(kind))
	return err
}

// RulesForApp returns the rules attached directly to the app.
func (s *Store) RulesForApp(id domain.AppID) ([]domain.Rule, error) {
	return s.rulesForKey(domain.AppTarget(id).Key())
}

// RulesForCategory returns the rules attached to the category.
func (s *Store) RulesForCategory(kind domain.CategoryKind) ([]domain.Rule, error) {
	return s.rulesForKey(domain.CategoryTarget(kind).Key())
}

func (s *Store) rulesForKey(key string) ([]domain.Rule, error) {
	rows, err := s.db.Query(`SELECT kind, version, payload FROM rules WHERE target_key = ?`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var kind string
		var version int
		var payload string
		if err := rows.Scan(&kind, &version, &payload); err != nil {
			return nil, err
		}
		rule, err := decodeRule(domain.RuleKind(kind), version, []byte(payload))
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AllRules returns every stored rule.
func (s *Store) AllRules() ([]domain.StoredRule, error) {
	rows, err := s.db.Query(`SELECT target_key, kind, version, payload FROM rules ORDER BY target_key, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stored []domain.StoredRule
	for rows.Next() {
		var key, kind, payload string
		var version int
		if err := rows.Scan(&key, &kind, &version, &payload); err != nil {
			return nil, err
		}
		rule, err := decodeRule(domain.RuleKind(kind), version, []byte(payload))
		if err != nil {
			return nil, err
		}
		stored = append(stored, domain.StoredRule{Target: parseTargetKey(key), Rule: rule})
	}
	return stored, rows.Err()
}

func parseTargetKey(key string) domain.RuleTarget {
	const appPrefix, catPrefix = "app:", "category:"
	if len(key) > len(appPrefix) && key[:len(appPrefix)] == appPrefix {
		return domain.AppTarget(domain.AppID(key[len(appPrefix):]))
	}
	if len(key) > len(catPrefix) && key[:len(catPrefix)] == catPrefix {
		return domain.CategoryTarget(domain.CategoryKind(key[len(catPrefix):]))
	}
	return domain.RuleTarget{}
}

// --- domain.CategoryStore implementation ---

// Category returns the record for an app, or nil if unclassified.
func (s *Store) Category(id domain.AppID) (*domain.Category, error) {
	var cat domain.Category
	var whitelisted, override int
	err := s.db.QueryRow(`SELECT app_id, kind, whitelisted, manual_override FROM categories WHERE app_id = ?`,
		string(id)).Scan(&cat.AppID, &cat.Kind, &whitelisted, &override)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cat.Whitelisted = whitelisted != 0
	cat.ManualOverride = override != 0
	return &cat, nil
}

// Assign writes a classifier-produced category. Records with a manual
// override are left untouched, atomically, in the upsert itself.
func (s *Store) Assign(cat domain.Category) error {
	_, err := s.db.Exec(`
		INSERT INTO categories (app_id, kind, whitelisted, manual_override)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (app_id) DO UPDATE SET
			kind = excluded.kind,
			whitelisted = excluded.whitelisted
		WHERE categories.manual_override = 0`,
		string(cat.AppID), string(cat.Kind), boolInt(cat.Whitelisted),
	)
	return err
}

// Override sets the kind by user action and pins it against the
// classifier.
func (s *Store) Override(id domain.AppID, kind domain.CategoryKind) error {
	_, err := s.db.Exec(`
		INSERT INTO categories (app_id, kind, whitelisted, manual_override)
		VALUES (?, ?, 0, 1)
		ON CONFLICT (app_id) DO UPDATE SET
			kind = excluded.kind,
			manual_override = 1`,
		string(id), string(kind),
	)
	return err
}

// SetWhitelisted flips the whitelist flag, creating an Other-kind record
// for a not-yet-classified app.
func (s *Store) SetWhitelisted(id domain.AppID, whitelisted bool) error {
	_, err := s.db.Exec(`
		INSERT INTO categories (app_id, kind, whitelisted, manual_override)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (app_id) DO UPDATE SET
			whitelisted = excluded.whitelisted`,
		string(id), string(domain.CategoryOther), boolInt(whitelisted),
	)
	return err
}

// AllCategories returns every classification record.
func (s *Store) AllCategories() ([]domain.Category, error) {
	rows, err := s.db.Query(`SELECT app_id, kind, whitelisted, manual_override FROM categories ORDER BY app_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var cat domain.Category
		var whitelisted, override int
		if err := rows.Scan(&cat.AppID, &cat.Kind, &whitelisted, &override); err != nil {
			return nil, err
		}
		cat.Whitelisted = whitelisted != 0
		cat.ManualOverride = override != 0
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// --- domain.UsageStore implementation ---

// AddUsage credits delta to (id, day).
func (s *Store) AddUsage(id domain.AppID, day string, delta time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO usage (app_id, day, duration_ms)
		VALUES (?, ?, ?)
		ON CONFLICT (app_id, day) DO UPDATE SET
			duration_ms = duration_ms + excluded.duration_ms`,
		string(id), day, delta.Milliseconds(),
	)
	return err
}

// UsageFor returns the accumulated duration for (id, day).
func (s *Store) UsageFor(id domain.AppID, day string) (time.Duration, error) {
	var ms int64
	err := s.db.QueryRow(`SELECT duration_ms FROM usage WHERE app_id = ? AND day = ?`,
		string(id), day).Scan(&ms)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// --- domain.FocusStore implementation ---

// LoadSession returns the committed focus session, or nil if none was ever
// saved.
func (s *Store) LoadSession() (*domain.FocusSession, error) {
	var version int
	var payload string
	err := s.db.QueryRow(`SELECT version, payload FROM focus_session WHERE id = 1`).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if version != focusCodecVersion {
		return nil, fmt.Errorf("unsupported focus session version %d", version)
	}

	var rec focusRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode focus session: %w", err)
	}

	session := &domain.FocusSession{
		SessionID:            rec.SessionID,
		State:                domain.FocusState(rec.State),
		AllowList:            make(map[domain.AppID]bool, len(rec.AllowList)),
		LockType:             domain.LockType(rec.LockType),
		CustomPassword:       rec.CustomPassword,
		SessionPhrase:        rec.SessionPhrase,
		PauseBudgetRemaining: time.Duration(rec.PauseBudgetMs) * time.Millisecond,
		PreviousState:        domain.FocusState(rec.PreviousState),
	}
	for _, id := range rec.AllowList {
		session.AllowList[domain.AppID(id)] = true
	}
	if rec.LastPauseStartedAt != 0 {
		session.LastPauseStartedAt = time.Unix(rec.LastPauseStartedAt, 0)
	}
	if rec.StartedAt != 0 {
		session.StartedAt = time.Unix(rec.StartedAt, 0)
	}
	return session, nil
}

// SaveSession commits the focus session record.
func (s *Store) SaveSession(session *domain.FocusSession) error {
	rec := focusRecord{
		SessionID:      session.SessionID,
		State:          string(session.State),
		AllowList:      make([]string, 0, len(session.AllowList)),
		LockType:       string(session.LockType),
		CustomPassword: session.CustomPassword,
		SessionPhrase:  session.SessionPhrase,
		PauseBudgetMs:  session.PauseBudgetRemaining.Milliseconds(),
		PreviousState:  string(session.PreviousState),
	}
	for id := range session.AllowList {
		rec.AllowList = append(rec.AllowList, string(id))
	}
	if !session.LastPauseStartedAt.IsZero() {
		rec.LastPauseStartedAt = session.LastPauseStartedAt.Unix()
	}
	if !session.StartedAt.IsZero() {
		rec.StartedAt = session.StartedAt.Unix()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO focus_session (id, version, payload, updated_at)
		VALUES (1, ?, ?, ?)`,
		focusCodecVersion, string(payload), time.Now().Unix(),
	)
	return err
}

// --- domain.SettingsStore implementation ---

// Mode returns the current app mode, ModeNormal when unset.
func (s *Store) Mode() (domain.AppMode, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'app_mode'`).Scan(&value)
	if err == sql.ErrNoRows {
		return domain.ModeNormal, nil
	}
	if err != nil {
		return "", err
	}
	mode, err := domain.ParseAppMode(value)
	if err != nil {
		return domain.ModeNormal, nil
	}
	return mode, nil
}

// SetMode stores the app mode.
func (s *Store) SetMode(mode domain.AppMode) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES ('app_mode', ?)`,
		string(mode))
	return err
}

// --- domain.AuditLog implementation ---

// Append writes one audit entry.
func (s *Store) Append(e domain.AuditEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_log (id, ts, app_id, allowed, reason, source, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), string(e.AppID), boolInt(e.Allowed),
		string(e.Reason), string(e.Source), e.Detail,
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]domain.AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ts, app_id, allowed, reason, source, detail
		FROM audit_log ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var ts int64
		var allowed int
		if err := rows.Scan(&e.ID, &ts, &e.AppID, &allowed, &e.Reason, &e.Source, &e.Detail); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Allowed = allowed != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Interface conformance.
var (
	_ domain.RuleStore     = (*Store)(nil)
	_ domain.CategoryStore = (*Store)(nil)
	_ domain.UsageStore    = (*Store)(nil)
	_ domain.FocusStore    = (*Store)(nil)
	_ domain.SettingsStore = (*Store)(nil)
	_ domain.AuditLog      = (*Store)(nil)
)
