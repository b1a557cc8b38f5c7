package store

import "github.com/daem0nmcp/daem0nmcp/internal/errs"

// PutTrigger inserts an auto-recall condition.
func (s *Store) PutTrigger(t Trigger) (int64, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	cats := make([]string, len(t.CategoryFilter))
	for i, c := range t.CategoryFilter {
		cats[i] = string(c)
	}
	res, err := s.db.Exec(`
		INSERT INTO triggers (pattern, match_file_path, match_tags, match_entities, recall_topic, category_filter)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Pattern, boolToInt(t.MatchFilePath), boolToInt(t.MatchTags), boolToInt(t.MatchEntities),
		t.RecallTopic, marshalStrings(cats))
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "inserting trigger")
	}
	return res.LastInsertId()
}

// ListTriggers returns all triggers.
func (s *Store) ListTriggers() ([]Trigger, error) {
	rows, err := s.db.Query(`SELECT id, pattern, match_file_path, match_tags, match_entities, recall_topic, category_filter FROM triggers`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying triggers")
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var t Trigger
		var mfp, mt, me int
		var catFilter string
		if err := rows.Scan(&t.ID, &t.Pattern, &mfp, &mt, &me, &t.RecallTopic, &catFilter); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning trigger row")
		}
		t.MatchFilePath = mfp != 0
		t.MatchTags = mt != 0
		t.MatchEntities = me != 0
		for _, c := range unmarshalStrings(catFilter) {
			t.CategoryFilter = append(t.CategoryFilter, Category(c))
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
