// Package mongostore keeps the IndexStore in two MongoDB collections, one
// document per object field and one per ordered-set member.
package mongostore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/itchan-dev/itforum/shared/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client  *mongo.Client
	objects *mongo.Collection
	zsets   *mongo.Collection
}

type fieldDoc struct {
	Key   string `bson:"_key"`
	Field string `bson:"field"`
	Value string `bson:"value"`
}

type memberDoc struct {
	Key    string  `bson:"_key"`
	Member string  `bson:"member"`
	Score  float64 `bson:"score"`
	Mlen   int     `bson:"mlen"`
}

// Open connects, pings and makes sure the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, internal_errors.Transient("connect mongo", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, internal_errors.Transient("ping mongo", err)
	}
	logger.Log.Info("successfully connected to mongo", "database", database)

	db := client.Database(database)
	s := &Store{client: client, objects: db.Collection("objects"), zsets: db.Collection("zsets")}
	if err := s.ensureIndexes(connectCtx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.objects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "_key", Value: 1}, {Key: "field", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create objects index: %w", err)
	}
	_, err = s.zsets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "_key", Value: 1}, {Key: "member", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "_key", Value: 1}, {Key: "score", Value: -1}, {Key: "mlen", Value: -1}, {Key: "member", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create zsets indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return internal_errors.Transient("ping", s.client.Ping(ctx, readpref.Primary()))
}

// Drop removes both collections. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.objects.Drop(ctx); err != nil {
		return err
	}
	return s.zsets.Drop(ctx)
}

func (s *Store) GetObjectField(ctx context.Context, key, field string) (string, error) {
	var doc fieldDoc
	err := s.objects.FindOne(ctx, bson.M{"_key": key, "field": field}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", internal_errors.Transient("getObjectField", err)
	}
	return doc.Value, nil
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

	filter := bson.M{"_key": bson.M{"$in": keys}}
	if fields != nil {
		filter["field"] = bson.M{"$in": fields}
	}
	cursor, err := s.objects.Find(ctx, filter)
	if err != nil {
		return nil, internal_errors.Transient("getObjectsFields", err)
	}
	var docs []fieldDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, internal_errors.Transient("getObjectsFields", err)
	}

	byKey := make(map[string]map[string]string, len(keys))
	for _, d := range docs {
		m, ok := byKey[d.Key]
		if !ok {
			m = make(map[string]string)
			byKey[d.Key] = m
		}
		m[d.Field] = d.Value
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
	models := make([]mongo.WriteModel, 0, len(values))
	for f, v := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_key": key, "field": f}).
			SetUpdate(bson.M{"$set": bson.M{"value": v}}).
			SetUpsert(true))
	}
	_, err := s.objects.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return internal_errors.Transient("setObject", err)
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string) (int64, error) {
	return s.IncrObjectFieldBy(ctx, key, field, 1)
}

func (s *Store) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error) {
	// values are strings, so the increment runs as an aggregation pipeline
	current := bson.D{{Key: "$toLong", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$value", "0"}}}}}
	sum := bson.D{{Key: "$add", Value: bson.A{current, by}}}
	value := bson.D{{Key: "$toString", Value: sum}}
	update := mongo.Pipeline{bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: value}}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc fieldDoc
	err := s.objects.FindOneAndUpdate(ctx, bson.M{"_key": key, "field": field}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on a new field, the loser retries as an update
		err = s.objects.FindOneAndUpdate(ctx, bson.M{"_key": key, "field": field}, update, opts).Decode(&doc)
	}
	if err != nil {
		return 0, internal_errors.Transient("incrObjectFieldBy", err)
	}
	n, err := strconv.ParseInt(doc.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s of %s is not an integer: %w", field, key, err)
	}
	return n, nil
}

func memberFilter(key, member string) bson.M {
	return bson.M{"_key": key, "member": member}
}

func (s *Store) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return s.SortedSetsAdd(ctx, []string{key}, score, member)
}

func (s *Store) SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) error {
	if len(keys) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(keys))
	for _, key := range keys {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(memberFilter(key, member)).
			SetUpdate(bson.M{"$set": bson.M{"score": score, "mlen": len(member)}}).
			SetUpsert(true))
	}
	_, err := s.zsets.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return internal_errors.Transient("sortedSetsAdd", err)
}

func (s *Store) SortedSetRaise(ctx context.Context, key string, entries []store.ScoredMember) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(memberFilter(key, e.Member)).
			SetUpdate(bson.M{
				"$max":         bson.M{"score": e.Score},
				"$setOnInsert": bson.M{"mlen": len(e.Member)},
			}).
			SetUpsert(true))
	}
	// ordered so repeated members apply in sequence
	_, err := s.zsets.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return internal_errors.Transient("sortedSetRaise", err)
}

func (s *Store) SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (float64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"score": by}, "$setOnInsert": bson.M{"mlen": len(member)}}

	var doc memberDoc
	err := s.zsets.FindOneAndUpdate(ctx, memberFilter(key, member), update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.zsets.FindOneAndUpdate(ctx, memberFilter(key, member), update, opts).Decode(&doc)
	}
	if err != nil {
		return 0, internal_errors.Transient("sortedSetIncrBy", err)
	}
	return doc.Score, nil
}

func (s *Store) SortedSetScores(ctx context.Context, key string, members []string) ([]store.Score, error) {
	result := make([]store.Score, len(members))
	if len(members) == 0 {
		return result, nil
	}
	cursor, err := s.zsets.Find(ctx, bson.M{"_key": key, "member": bson.M{"$in": members}})
	if err != nil {
		return nil, internal_errors.Transient("sortedSetScores", err)
	}
	var docs []memberDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, internal_errors.Transient("sortedSetScores", err)
	}
	scores := make(map[string]float64, len(docs))
	for _, d := range docs {
		scores[d.Member] = d.Score
	}
	for i, m := range members {
		if v, ok := scores[m]; ok {
			result[i] = store.Score{Value: v, Valid: true}
		}
	}
	return result, nil
}

func (s *Store) IsSortedSetMember(ctx context.Context, key, member string) (bool, error) {
	n, err := s.zsets.CountDocuments(ctx, memberFilter(key, member), options.Count().SetLimit(1))
	if err != nil {
		return false, internal_errors.Transient("isSortedSetMember", err)
	}
	return n > 0, nil
}

func order(dir int) bson.D {
	return bson.D{{Key: "score", Value: dir}, {Key: "mlen", Value: dir}, {Key: "member", Value: dir}}
}

// findWindow applies the inclusive [start, stop] window to a sorted find.
func (s *Store) findWindow(ctx context.Context, filter bson.M, dir, start, stop int) ([]memberDoc, error) {
	if start < 0 {
		start = 0
	}
	if stop >= 0 && stop < start {
		return nil, nil
	}
	opts := options.Find().SetSort(order(dir)).SetSkip(int64(start))
	if stop >= 0 {
		opts.SetLimit(int64(stop - start + 1))
	}
	cursor, err := s.zsets.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []memberDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func memberNames(docs []memberDoc) []string {
	result := make([]string, len(docs))
	for i, d := range docs {
		result[i] = d.Member
	}
	return result
}

func (s *Store) GetSortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	docs, err := s.findWindow(ctx, bson.M{"_key": key}, 1, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRange", err)
	}
	return memberNames(docs), nil
}

func (s *Store) GetSortedSetRevRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	docs, err := s.findWindow(ctx, bson.M{"_key": key}, -1, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRevRange", err)
	}
	return memberNames(docs), nil
}

func (s *Store) GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) ([]store.ScoredMember, error) {
	filter := bson.M{"_key": key}
	bounds := bson.M{}
	if !math.IsInf(max, 1) {
		bounds["$lte"] = max
	}
	if !math.IsInf(min, -1) {
		bounds["$gte"] = min
	}
	if len(bounds) > 0 {
		filter["score"] = bounds
	}
	docs, err := s.findWindow(ctx, filter, -1, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRevRangeByScoreWithScores", err)
	}
	result := make([]store.ScoredMember, len(docs))
	for i, d := range docs {
		result[i] = store.ScoredMember{Member: d.Member, Score: d.Score}
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.objects.DeleteMany(ctx, bson.M{"_key": key}); err != nil {
		return internal_errors.Transient("delete", err)
	}
	_, err := s.zsets.DeleteMany(ctx, bson.M{"_key": key})
	return internal_errors.Transient("delete", err)
}
