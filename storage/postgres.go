package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"grail-oracle/models"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection, waits for the database to come up, runs
// schema migrations, and returns a ready-to-use store.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &Postgres{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// NewPostgresFromDB wraps an existing connection; used by tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tracked_items (
			id              UUID PRIMARY KEY,
			title           TEXT        NOT NULL,
			ticker          VARCHAR(24) UNIQUE NOT NULL,
			canonical_price NUMERIC(12,2),
			condition_grade VARCHAR(4)  NOT NULL DEFAULT 'NR',
			condition_score NUMERIC(4,3) NOT NULL DEFAULT 0.5,
			ai_notes        TEXT        NOT NULL DEFAULT '',
			last_updated    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_scanned_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS offers (
			id              BIGSERIAL PRIMARY KEY,
			item_id         UUID        NOT NULL,
			source          VARCHAR(32) NOT NULL,
			region          VARCHAR(8)  NOT NULL,
			local_price     NUMERIC(14,2) NOT NULL,
			local_currency  VARCHAR(8)  NOT NULL,
			landed_usd      NUMERIC(12,2) NOT NULL,
			url             TEXT        NOT NULL,
			condition_text  TEXT        NOT NULL DEFAULT '',
			title           TEXT        NOT NULL DEFAULT '',
			image_url       TEXT        NOT NULL DEFAULT '',
			observed_at     TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS price_alerts (
			id           BIGSERIAL PRIMARY KEY,
			item_id      UUID        NOT NULL,
			user_id      TEXT        NOT NULL,
			target_price NUMERIC(12,2) NOT NULL,
			condition    VARCHAR(8)  NOT NULL,
			is_active    BOOLEAN     NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS feed_events (
			id         UUID        PRIMARY KEY,
			type       VARCHAR(16) NOT NULL,
			item_id    UUID        NOT NULL,
			title      TEXT        NOT NULL,
			message    TEXT        NOT NULL,
			price      NUMERIC(12,2) NOT NULL DEFAULT 0,
			ticker     VARCHAR(24) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS seed_cursors (
			shard_id INT PRIMARY KEY,
			cursor_pos INT NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_items_last_updated ON tracked_items(last_updated);
		CREATE INDEX IF NOT EXISTS idx_offers_item        ON offers(item_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_item_active ON price_alerts(item_id) WHERE is_active;
	`)
	return err
}

const itemCols = `id, title, ticker, canonical_price, condition_grade,
	condition_score, ai_notes, last_updated, last_scanned_at, created_at`

// UpsertItem inserts the item keyed by ticker. On conflict the existing
// row wins (prices are only written through UpdatePrice) and is returned.
func (s *Postgres) UpsertItem(item *models.TrackedItem) (*models.TrackedItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ConditionGrade == "" {
		item.ConditionGrade = models.GradeNR
	}

	row := s.db.QueryRow(`
		INSERT INTO tracked_items (id, title, ticker, condition_grade, condition_score, ai_notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker) DO UPDATE SET ticker = tracked_items.ticker
		RETURNING `+itemCols,
		item.ID, item.Title, item.Ticker, string(item.ConditionGrade),
		item.ConditionScore, item.AINotes,
	)
	stored, err := scanItem(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert item: %w", err)
	}
	return stored, nil
}

func (s *Postgres) GetItemByTicker(ticker string) (*models.TrackedItem, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM tracked_items WHERE ticker = $1`, ticker)
	item, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get item by ticker: %w", err)
	}
	return item, nil
}

func (s *Postgres) GetItemByTitle(title string) (*models.TrackedItem, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM tracked_items WHERE LOWER(title) = LOWER($1)`, title)
	item, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get item by title: %w", err)
	}
	return item, nil
}

func (s *Postgres) TitleExists(title string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM tracked_items WHERE LOWER(title) = LOWER($1)`, title).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("postgres: title exists: %w", err)
	}
	return n > 0, nil
}

// StaleItems returns items with no canonical price first, then the least
// recently updated ones, up to limit.
func (s *Postgres) StaleItems(limit int) ([]*models.TrackedItem, error) {
	rows, err := s.db.Query(`
		SELECT `+itemCols+`
		FROM tracked_items
		ORDER BY canonical_price IS NOT NULL, last_updated ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: stale items: %w", err)
	}
	defer rows.Close()

	var items []*models.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Postgres) UpdatePrice(itemID string, price float64, grade models.ConditionGrade, score float64, notes string) error {
	_, err := s.db.Exec(`
		UPDATE tracked_items
		SET canonical_price = $2, condition_grade = $3, condition_score = $4,
		    ai_notes = $5, last_updated = NOW()
		WHERE id = $1`,
		itemID, price, string(grade), score, notes)
	if err != nil {
		return fmt.Errorf("postgres: update price: %w", err)
	}
	return nil
}

func (s *Postgres) MarkScanned(itemID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE tracked_items SET last_scanned_at = $2 WHERE id = $1`, itemID, at)
	if err != nil {
		return fmt.Errorf("postgres: mark scanned: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteItem(itemID string) error {
	_, err := s.db.Exec(`DELETE FROM tracked_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("postgres: delete item: %w", err)
	}
	return nil
}

// InsertOffers appends offer audit rows in one batched statement.
func (s *Postgres) InsertOffers(offers []*models.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	const cols = 11
	valueStrings := make([]string, 0, len(offers))
	valueArgs := make([]interface{}, 0, len(offers)*cols)

	for idx, o := range offers {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := 0; j < cols; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			o.ItemID, o.Source, o.Region, o.LocalPrice, o.LocalCurrency,
			o.LandedUSD, o.URL, o.Condition, o.Title, o.ImageURL, o.ObservedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO offers (item_id, source, region, local_price, local_currency,
			landed_usd, url, condition_text, title, image_url, observed_at)
		VALUES %s`, strings.Join(valueStrings, ","))

	if _, err := s.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert offers: %w", err)
	}
	return nil
}

func (s *Postgres) ActiveAlerts(itemID string) ([]*models.PriceAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, user_id, target_price, condition, is_active, created_at
		FROM price_alerts
		WHERE item_id = $1 AND is_active`, itemID)
	if err != nil {
		return nil, fmt.Errorf("postgres: active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.PriceAlert
	for rows.Next() {
		a := &models.PriceAlert{}
		var cond string
		if err := rows.Scan(&a.ID, &a.ItemID, &a.UserID, &a.TargetPrice,
			&cond, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		a.Condition = models.AlertCondition(cond)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Postgres) DeactivateAlert(id int64) error {
	_, err := s.db.Exec(`UPDATE price_alerts SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate alert: %w", err)
	}
	return nil
}

func (s *Postgres) InsertFeedEvent(ev *models.FeedEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO feed_events (id, type, item_id, title, message, price, ticker)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Type, ev.ItemID, ev.Title, ev.Message, ev.Price, ev.Ticker)
	if err != nil {
		return fmt.Errorf("postgres: insert feed event: %w", err)
	}
	return nil
}

func (s *Postgres) SeedCursor(shardID int) (int, error) {
	var cursor int
	err := s.db.QueryRow(`SELECT cursor_pos FROM seed_cursors WHERE shard_id = $1`, shardID).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: seed cursor: %w", err)
	}
	return cursor, nil
}

func (s *Postgres) SaveSeedCursor(shardID, cursor int) error {
	_, err := s.db.Exec(`
		INSERT INTO seed_cursors (shard_id, cursor_pos)
		VALUES ($1, $2)
		ON CONFLICT (shard_id) DO UPDATE SET cursor_pos = EXCLUDED.cursor_pos`,
		shardID, cursor)
	if err != nil {
		return fmt.Errorf("postgres: save seed cursor: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func scanItem(scan func(...any) error) (*models.TrackedItem, error) {
	item := &models.TrackedItem{}
	var price sql.NullFloat64
	var grade string

	err := scan(&item.ID, &item.Title, &item.Ticker, &price, &grade,
		&item.ConditionScore, &item.AINotes, &item.LastUpdated,
		&item.LastScannedAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	if price.Valid {
		item.CanonicalPrice = &price.Float64
	}
	item.ConditionGrade = models.ConditionGrade(grade)
	return item, nil
}
