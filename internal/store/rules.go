package store

import "github.com/daem0nmcp/daem0nmcp/internal/errs"

// PutRule inserts or updates a governance rule. Rule.ID == 0 inserts a new row.
func (s *Store) PutRule(r Rule) (int64, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if r.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO rules (trigger, must_do, must_not, ask_first, warnings, priority, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Trigger, marshalStrings(r.MustDo), marshalStrings(r.MustNot),
			marshalStrings(r.AskFirst), marshalStrings(r.Warnings), r.Priority, boolToInt(r.Enabled))
		if err != nil {
			return 0, errs.Wrap(errs.StorageFailure, err, "inserting rule")
		}
		return res.LastInsertId()
	}

	res, err := s.db.Exec(`
		UPDATE rules SET trigger = ?, must_do = ?, must_not = ?, ask_first = ?, warnings = ?, priority = ?, enabled = ?
		WHERE id = ?`,
		r.Trigger, marshalStrings(r.MustDo), marshalStrings(r.MustNot),
		marshalStrings(r.AskFirst), marshalStrings(r.Warnings), r.Priority, boolToInt(r.Enabled), r.ID)
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "updating rule")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, errs.Newf(errs.NotFound, "rule %d not found", r.ID)
	}
	return r.ID, nil
}

// ListRules returns all rules ordered by priority, highest first.
func (s *Store) ListRules() ([]Rule, error) {
	rows, err := s.db.Query(`SELECT id, trigger, must_do, must_not, ask_first, warnings, priority, enabled
		FROM rules ORDER BY priority DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying rules")
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		var mustDo, mustNot, askFirst, warnings string
		var enabled int
		if err := rows.Scan(&r.ID, &r.Trigger, &mustDo, &mustNot, &askFirst, &warnings, &r.Priority, &enabled); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning rule row")
		}
		r.MustDo = unmarshalStrings(mustDo)
		r.MustNot = unmarshalStrings(mustNot)
		r.AskFirst = unmarshalStrings(askFirst)
		r.Warnings = unmarshalStrings(warnings)
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
