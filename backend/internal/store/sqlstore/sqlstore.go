// Package sqlstore keeps the IndexStore in two relational tables and serves
// both Postgres (lib/pq) and SQLite (modernc.org/sqlite) through sqlx.
package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/itchan-dev/itforum/backend/internal/store"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/itchan-dev/itforum/shared/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	postgres dialect = iota
	sqlite
)

type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// OpenPostgres connects with a lib/pq DSN and pings the server.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	logger.Log.Info("connecting to postgres")
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, internal_errors.Transient("connect postgres", err)
	}
	logger.Log.Info("successfully connected to postgres")
	return &Store{db: db, dialect: postgres}, nil
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// single writer keeps read-modify-write statements serialized
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, internal_errors.Transient("ping sqlite", err)
	}
	return &Store{db: db, dialect: sqlite}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return internal_errors.Transient("ping", s.db.PingContext(ctx))
}

// orderDesc is the reverse of store.Less expressed in SQL.
func (s *Store) orderDesc() string {
	if s.dialect == postgres {
		return `score DESC, octet_length(member) DESC, member COLLATE "C" DESC`
	}
	return "score DESC, length(CAST(member AS BLOB)) DESC, member DESC"
}

func (s *Store) orderAsc() string {
	if s.dialect == postgres {
		return `score ASC, octet_length(member) ASC, member COLLATE "C" ASC`
	}
	return "score ASC, length(CAST(member AS BLOB)) ASC, member ASC"
}

// window turns an inclusive [start, stop] range into a LIMIT/OFFSET clause.
func (s *Store) window(start, stop int) (string, []any, bool) {
	if start < 0 {
		start = 0
	}
	if stop >= 0 && stop < start {
		return "", nil, false
	}
	limit := -1
	if stop >= 0 {
		limit = stop - start + 1
	}
	if limit < 0 {
		if s.dialect == sqlite {
			return " LIMIT -1 OFFSET ?", []any{start}, true
		}
		return " OFFSET ?", []any{start}, true
	}
	return " LIMIT ? OFFSET ?", []any{limit, start}, true
}

type fieldRow struct {
	Key   string `db:"_key"`
	Field string `db:"field"`
	Value string `db:"value"`
}

type scoreRow struct {
	Member string  `db:"member"`
	Score  float64 `db:"score"`
}

func (s *Store) GetObjectField(ctx context.Context, key, field string) (string, error) {
	var values []string
	err := s.db.SelectContext(ctx, &values, s.db.Rebind("SELECT value FROM objects WHERE _key = ? AND field = ?"), key, field)
	if err != nil {
		return "", internal_errors.Transient("getObjectField", err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func (s *Store) GetObjectFields(ctx context.Context, key string, fields []string) (map[string]string, error) {
	result, err := s.GetObjectsFields(ctx, []string{key}, fields)
	if err != nil {
		return nil, err
	}
	return result[0], nil
}

func (s *Store) GetObjectsFields(ctx context.Context, keys []string, fields []string) ([]map[string]string, error) {
	result := make([]map[string]string, len(keys))
	for i := range result {
		result[i] = make(map[string]string)
	}
	if len(keys) == 0 || (fields != nil && len(fields) == 0) {
		return result, nil
	}

	query := "SELECT _key, field, value FROM objects WHERE _key IN (?)"
	args := []any{keys}
	if fields != nil {
		query += " AND field IN (?)"
		args = append(args, fields)
	}
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build getObjectsFields query: %w", err)
	}
	var rows []fieldRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, internal_errors.Transient("getObjectsFields", err)
	}

	byKey := make(map[string]map[string]string, len(keys))
	for _, r := range rows {
		m, ok := byKey[r.Key]
		if !ok {
			m = make(map[string]string)
			byKey[r.Key] = m
		}
		m[r.Field] = r.Value
	}
	for i, key := range keys {
		for f, v := range byKey[key] {
			result[i][f] = v
		}
	}
	return result, nil
}

func (s *Store) SetObjectField(ctx context.Context, key, field, value string) error {
	return s.SetObject(ctx, key, map[string]string{field: value})
}

func (s *Store) SetObject(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internal_errors.Transient("setObject", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO objects (_key, field, value) VALUES (?, ?, ?)
		ON CONFLICT (_key, field) DO UPDATE SET value = excluded.value`)
	for field, value := range values {
		if _, err := tx.ExecContext(ctx, query, key, field, value); err != nil {
			return internal_errors.Transient("setObject", err)
		}
	}
	return internal_errors.Transient("setObject", tx.Commit())
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string) (int64, error) {
	return s.IncrObjectFieldBy(ctx, key, field, 1)
}

func (s *Store) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error) {
	query := s.db.Rebind(`INSERT INTO objects (_key, field, value) VALUES (?, ?, ?)
		ON CONFLICT (_key, field) DO UPDATE
		SET value = CAST(CAST(objects.value AS BIGINT) + CAST(excluded.value AS BIGINT) AS TEXT)
		RETURNING value`)
	var value string
	if err := s.db.GetContext(ctx, &value, query, key, field, strconv.FormatInt(by, 10)); err != nil {
		return 0, internal_errors.Transient("incrObjectFieldBy", err)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s of %s is not an integer: %w", field, key, err)
	}
	return n, nil
}

const upsertScore = `INSERT INTO sorted_sets (_key, member, score) VALUES (?, ?, ?)
	ON CONFLICT (_key, member) DO UPDATE SET score = excluded.score`

func (s *Store) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertScore), key, member, score)
	return internal_errors.Transient("sortedSetAdd", err)
}

func (s *Store) SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internal_errors.Transient("sortedSetsAdd", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(upsertScore)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key, member, score); err != nil {
			return internal_errors.Transient("sortedSetsAdd", err)
		}
	}
	return internal_errors.Transient("sortedSetsAdd", tx.Commit())
}

func (s *Store) SortedSetRaise(ctx context.Context, key string, entries []store.ScoredMember) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internal_errors.Transient("sortedSetRaise", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO sorted_sets (_key, member, score) VALUES (?, ?, ?)
		ON CONFLICT (_key, member) DO UPDATE SET score = excluded.score
		WHERE excluded.score > sorted_sets.score`)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, key, e.Member, e.Score); err != nil {
			return internal_errors.Transient("sortedSetRaise", err)
		}
	}
	return internal_errors.Transient("sortedSetRaise", tx.Commit())
}

func (s *Store) SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (float64, error) {
	query := s.db.Rebind(`INSERT INTO sorted_sets (_key, member, score) VALUES (?, ?, ?)
		ON CONFLICT (_key, member) DO UPDATE SET score = sorted_sets.score + excluded.score
		RETURNING score`)
	var score float64
	if err := s.db.GetContext(ctx, &score, query, key, member, by); err != nil {
		return 0, internal_errors.Transient("sortedSetIncrBy", err)
	}
	return score, nil
}

func (s *Store) SortedSetScores(ctx context.Context, key string, members []string) ([]store.Score, error) {
	result := make([]store.Score, len(members))
	if len(members) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In("SELECT member, score FROM sorted_sets WHERE _key = ? AND member IN (?)", key, members)
	if err != nil {
		return nil, fmt.Errorf("build sortedSetScores query: %w", err)
	}
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, internal_errors.Transient("sortedSetScores", err)
	}
	scores := make(map[string]float64, len(rows))
	for _, r := range rows {
		scores[r.Member] = r.Score
	}
	for i, m := range members {
		if v, ok := scores[m]; ok {
			result[i] = store.Score{Value: v, Valid: true}
		}
	}
	return result, nil
}

func (s *Store) IsSortedSetMember(ctx context.Context, key, member string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT count(*) FROM sorted_sets WHERE _key = ? AND member = ?"), key, member)
	if err != nil {
		return false, internal_errors.Transient("isSortedSetMember", err)
	}
	return n > 0, nil
}

func (s *Store) rangeMembers(ctx context.Context, op, key, order string, start, stop int) ([]string, error) {
	clause, windowArgs, ok := s.window(start, stop)
	if !ok {
		return []string{}, nil
	}
	query := "SELECT member FROM sorted_sets WHERE _key = ? ORDER BY " + order + clause
	members := []string{}
	args := append([]any{key}, windowArgs...)
	if err := s.db.SelectContext(ctx, &members, s.db.Rebind(query), args...); err != nil {
		return nil, internal_errors.Transient(op, err)
	}
	return members, nil
}

func (s *Store) GetSortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	return s.rangeMembers(ctx, "getSortedSetRange", key, s.orderAsc(), start, stop)
}

func (s *Store) GetSortedSetRevRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	return s.rangeMembers(ctx, "getSortedSetRevRange", key, s.orderDesc(), start, stop)
}

func (s *Store) GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) ([]store.ScoredMember, error) {
	clause, windowArgs, ok := s.window(start, stop)
	if !ok {
		return []store.ScoredMember{}, nil
	}
	var b strings.Builder
	b.WriteString("SELECT member, score FROM sorted_sets WHERE _key = ?")
	args := []any{key}
	// infinities are not portable as bind parameters
	if !math.IsInf(max, 1) {
		b.WriteString(" AND score <= ?")
		args = append(args, max)
	}
	if !math.IsInf(min, -1) {
		b.WriteString(" AND score >= ?")
		args = append(args, min)
	}
	b.WriteString(" ORDER BY " + s.orderDesc() + clause)
	args = append(args, windowArgs...)

	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(b.String()), args...); err != nil {
		return nil, internal_errors.Transient("getSortedSetRevRangeByScoreWithScores", err)
	}
	result := make([]store.ScoredMember, len(rows))
	for i, r := range rows {
		result[i] = store.ScoredMember{Member: r.Member, Score: r.Score}
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internal_errors.Transient("delete", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM objects WHERE _key = ?"), key); err != nil {
		return internal_errors.Transient("delete", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sorted_sets WHERE _key = ?"), key); err != nil {
		return internal_errors.Transient("delete", err)
	}
	return internal_errors.Transient("delete", tx.Commit())
}
