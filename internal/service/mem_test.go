package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
)

// memStore is the shared in-memory substitute for *repository.Repository.
// It implements every repo interface the services consume; WithinTx just
// runs the callback, so the q arguments are ignored.
type memStore struct {
	balances     map[int64]*model.Balance
	transactions []model.Transaction
	rules        map[string]model.ActivityRule
	activityLog  []model.ActivityLog
	nextLogID    int64
	edges        map[int64]model.ReferralEdge
	bonusRecords map[string]model.ReferralBonus
	codes        map[int64]model.ReferralCode
	partners     map[int64]model.Partner
	settings     map[string]string

	now func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		balances:     make(map[int64]*model.Balance),
		rules:        make(map[string]model.ActivityRule),
		edges:        make(map[int64]model.ReferralEdge),
		bonusRecords: make(map[string]model.ReferralBonus),
		codes:        make(map[int64]model.ReferralCode),
		partners:     make(map[int64]model.Partner),
		settings:     make(map[string]string),
		now:          time.Now,
	}
}

func testLoyaltyConfig() config.LoyaltyConfig {
	return config.LoyaltyConfig{
		BonusPercents: map[int]float64{1: 0.50, 2: 0.30, 3: 0.20},
		MinThresholds: map[int]float64{1: 10, 2: 5, 3: 2},
		MaxDepth:      3,
		GeoRadiusM:    100,
		CodeAttempts:  3,
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (m *memStore) EnsureBalance(ctx context.Context, accountID int64) (*model.Balance, error) {
	b, ok := m.balances[accountID]
	if !ok {
		b = &model.Balance{AccountID: accountID, LastUpdated: m.now()}
		m.balances[accountID] = b
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) LockBalance(ctx context.Context, tx *sqlx.Tx, accountID int64) (*model.Balance, error) {
	b, ok := m.balances[accountID]
	if !ok {
		return nil, repository.ErrBalanceNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) CreditBalance(ctx context.Context, q sqlx.ExtContext, accountID int64, points float64) (*model.Balance, error) {
	b, ok := m.balances[accountID]
	if !ok {
		b = &model.Balance{AccountID: accountID}
		m.balances[accountID] = b
	}
	b.TotalPoints += points
	b.AvailablePoints += points
	b.LastUpdated = m.now()
	cp := *b
	return &cp, nil
}

func (m *memStore) DebitBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, points float64) error {
	b, ok := m.balances[accountID]
	if !ok {
		return repository.ErrBalanceNotFound
	}
	b.AvailablePoints -= points
	b.LastUpdated = m.now()
	return nil
}

func (m *memStore) InsertTransaction(ctx context.Context, q sqlx.ExtContext, t *model.Transaction) error {
	t.ID = uuid.New()
	t.CreatedAt = m.now()
	m.transactions = append(m.transactions, *t)
	return nil
}

func (m *memStore) matchFilter(t model.Transaction, f model.TransactionFilter) bool {
	if t.AccountID != f.AccountID {
		return false
	}
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	if f.ActivityType != nil && (t.ActivityType == nil || *t.ActivityType != *f.ActivityType) {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (m *memStore) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	var all []model.Transaction
	for _, t := range m.transactions {
		if m.matchFilter(t, f) {
			all = append(all, t)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memStore) SummarizeTransactions(ctx context.Context, f model.TransactionFilter) (*model.TransactionSummary, error) {
	s := &model.TransactionSummary{ByType: make(map[model.TransactionType]float64)}
	for _, t := range m.transactions {
		if !m.matchFilter(t, f) {
			continue
		}
		if t.Points > 0 {
			s.TotalEarned += t.Points
		} else {
			s.TotalSpent += -t.Points
		}
		s.ByType[t.Type] += t.Points
	}
	return s, nil
}

func (m *memStore) PartnerNamesByTransaction(ctx context.Context, txIDs []any) (map[string]string, error) {
	want := make(map[string]bool, len(txIDs))
	for _, id := range txIDs {
		want[id.(string)] = true
	}
	names := make(map[string]string)
	for _, e := range m.activityLog {
		if e.PartnerID == nil || !want[e.TransactionID.String()] {
			continue
		}
		if p, ok := m.partners[*e.PartnerID]; ok {
			names[e.TransactionID.String()] = p.Name
		}
	}
	return names, nil
}

func (m *memStore) GetActivityRule(ctx context.Context, activityType string) (*model.ActivityRule, error) {
	r, ok := m.rules[activityType]
	if !ok {
		return nil, repository.ErrRuleNotFound
	}
	return &r, nil
}

func (m *memStore) ListActivityRules(ctx context.Context) ([]model.ActivityRule, error) {
	var rules []model.ActivityRule
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ActivityType < rules[j].ActivityType })
	return rules, nil
}

func (m *memStore) UpsertActivityRule(ctx context.Context, rule *model.ActivityRule) error {
	m.rules[rule.ActivityType] = *rule
	return nil
}

func (m *memStore) LastActivityAt(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string) (*time.Time, error) {
	var last *time.Time
	for _, e := range m.activityLog {
		if e.AccountID != accountID || e.ActivityType != activityType {
			continue
		}
		t := e.CreatedAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (m *memStore) CountActivitiesSince(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string, since time.Time) (int, error) {
	count := 0
	for _, e := range m.activityLog {
		if e.AccountID == accountID && e.ActivityType == activityType && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) InsertActivityLog(ctx context.Context, q sqlx.ExtContext, entry *model.ActivityLog) error {
	m.nextLogID++
	entry.ID = m.nextLogID
	entry.CreatedAt = m.now()
	m.activityLog = append(m.activityLog, *entry)
	return nil
}

func (m *memStore) GetPartner(ctx context.Context, id int64) (*model.Partner, error) {
	p, ok := m.partners[id]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	return &p, nil
}

func (m *memStore) GetEdge(ctx context.Context, q sqlx.ExtContext, refereeID int64) (*model.ReferralEdge, error) {
	e, ok := m.edges[refereeID]
	if !ok {
		return nil, repository.ErrEdgeNotFound
	}
	return &e, nil
}

func (m *memStore) InsertEdge(ctx context.Context, q sqlx.ExtContext, edge *model.ReferralEdge) error {
	if _, ok := m.edges[edge.RefereeID]; ok {
		return repository.ErrEdgeExists
	}
	edge.CreatedAt = m.now()
	m.edges[edge.RefereeID] = *edge
	return nil
}

func (m *memStore) GetChain(ctx context.Context, q sqlx.ExtContext, accountID int64, maxDepth int) ([]model.ChainLink, error) {
	var chain []model.ChainLink
	current := accountID
	for level := 1; level <= maxDepth; level++ {
		e, ok := m.edges[current]
		if !ok {
			break
		}
		chain = append(chain, model.ChainLink{Level: level, AncestorID: e.ReferrerID})
		current = e.ReferrerID
	}
	return chain, nil
}

func (m *memStore) ListDirectReferees(ctx context.Context, referrerIDs []int64) ([]model.ReferralEdge, error) {
	want := make(map[int64]bool, len(referrerIDs))
	for _, id := range referrerIDs {
		want[id] = true
	}
	var edges []model.ReferralEdge
	for _, e := range m.edges {
		if want[e.ReferrerID] {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].RefereeID < edges[j].RefereeID })
	return edges, nil
}

func (m *memStore) InsertBonusRecord(ctx context.Context, q sqlx.ExtContext, rec *model.ReferralBonus) (bool, error) {
	key := fmt.Sprintf("%s/%d", rec.SourceTransactionID, rec.Level)
	if _, ok := m.bonusRecords[key]; ok {
		return false, nil
	}
	rec.ID = uuid.New()
	rec.CreatedAt = m.now()
	m.bonusRecords[key] = *rec
	return true, nil
}

func (m *memStore) LevelEarnings(ctx context.Context, referrerID int64) (map[int]float64, error) {
	earnings := make(map[int]float64)
	for _, r := range m.bonusRecords {
		if r.ReferrerID == referrerID {
			earnings[r.Level] += r.Amount
		}
	}
	return earnings, nil
}

func (m *memStore) GetReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error) {
	rc, ok := m.codes[accountID]
	if !ok {
		return nil, repository.ErrCodeNotFound
	}
	return &rc, nil
}

func (m *memStore) GetReferralCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	for _, rc := range m.codes {
		if rc.Code == code && rc.IsActive {
			return &rc, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}

func (m *memStore) InsertReferralCode(ctx context.Context, rc *model.ReferralCode) error {
	if _, ok := m.codes[rc.AccountID]; ok {
		return repository.ErrCodeTaken
	}
	for _, existing := range m.codes {
		if existing.Code == rc.Code {
			return repository.ErrCodeTaken
		}
	}
	rc.CreatedAt = m.now()
	m.codes[rc.AccountID] = *rc
	return nil
}

func (m *memStore) ReactivateReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error) {
	rc, ok := m.codes[accountID]
	if !ok {
		return nil, repository.ErrCodeNotFound
	}
	rc.IsActive = true
	m.codes[accountID] = rc
	return &rc, nil
}

func (m *memStore) SetSetting(ctx context.Context, key, value string) error {
	m.settings[key] = value
	return nil
}

func (m *memStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}
