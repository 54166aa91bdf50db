package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estrella/internal/config"
	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/google/uuid"
)

// In-memory repositories for testing

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func storeDown(op string) error {
	return apperrors.NewStoreUnavailableError(op, errConnRefused)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testQuotaConfig() *config.QuotaConfig {
	return &config.QuotaConfig{
		Allowances: map[types.Level]int{
			types.LevelBronze: 5,
			types.LevelSilver: 5,
			types.LevelGold:   30,
		},
		BeerBonus:  10,
		PromoCodes: map[string]int{"123456": 10},
		Timezone:   "UTC",
		Backend:    config.BackendPostgres,
	}
}

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*models.User)}
}

func (m *mockUserRepository) add(name string, level types.Level) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Age:          30,
		Gender:       "mujer",
		VisibleOnMap: true,
		Level:        level,
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, ok := m.users[user.ID]; ok {
		return apperrors.NewInvalidArgumentError("id", "user already exists")
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", id)
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id string, update *models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", id)
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	if update.PhotoURL != nil {
		u.PhotoURL = *update.PhotoURL
	}
	if update.VisibleOnMap != nil {
		u.VisibleOnMap = *update.VisibleOnMap
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepository) AddStar(ctx context.Context, id string, thresholds types.LevelThresholds) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", id)
	}
	u.Stars++
	u.Level = thresholds.LevelFor(u.Stars)
	u.UpdatedAt = time.Now().UTC()
	copied := *u
	return &copied, nil
}

func (m *mockUserRepository) ListVisible(ctx context.Context, filter models.MapFilter) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.User
	for _, u := range m.users {
		if !u.VisibleOnMap || u.ID == filter.ExcludeID {
			continue
		}
		copied := *u
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Stars > result[j].Stars })
	return result, nil
}

type mockConversationRepository struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	// staleReads makes that many FindByPair calls miss, as if another writer had
	// not committed yet
	staleReads  int32
	findCalls   int32
	createCalls int32
	findErr     error
	touchErr    error
}

func newMockConversationRepository() *mockConversationRepository {
	return &mockConversationRepository{conversations: make(map[string]*models.Conversation)}
}

func (m *mockConversationRepository) seed(user1, user2 string) *models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c := &models.Conversation{ID: uuid.New().String(), User1ID: user1, User2ID: user2, CreatedAt: now, LastActivityAt: now}
	m.conversations[c.ID] = c
	return c
}

func (m *mockConversationRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

func (m *mockConversationRepository) FindByPair(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	atomic.AddInt32(&m.findCalls, 1)
	if m.findErr != nil {
		return nil, m.findErr
	}
	if atomic.AddInt32(&m.staleReads, -1) >= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if (c.User1ID == userA && c.User2ID == userB) || (c.User1ID == userB && c.User2ID == userA) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	atomic.AddInt32(&m.createCalls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	lo, hi := canonicalPair(conv.User1ID, conv.User2ID)
	for _, c := range m.conversations {
		a, b := canonicalPair(c.User1ID, c.User2ID)
		if a == lo && b == hi {
			return apperrors.NewConversationConflictError(errors.New("duplicate key value violates unique constraint"))
		}
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt, conv.LastActivityAt = now, now
	copied := *conv
	m.conversations[conv.ID] = &copied
	return nil
}

func (m *mockConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("conversation", id)
	}
	copied := *c
	return &copied, nil
}

func (m *mockConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	if c, ok := m.conversations[id]; ok && at.After(c.LastActivityAt) {
		c.LastActivityAt = at
	}
	return nil
}

func (m *mockConversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.ConversationSummary
	for _, c := range m.conversations {
		if c.HasMember(userID) {
			result = append(result, &models.ConversationSummary{Conversation: *c})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastActivityAt.After(result[j].LastActivityAt) })
	return result, nil
}

type mockMessageRepository struct {
	mu       sync.Mutex
	messages []*models.Message
	failNext bool
}

func (m *mockMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return storeDown("create message")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	copied := *msg
	m.messages = append(m.messages, &copied)
	return nil
}

func (m *mockMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			copied := *msg
			result = append(result, &copied)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *mockMessageRepository) MarkRead(ctx context.Context, conversationID, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.RecipientID == recipientID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type quotaKey struct {
	user string
	day  types.Day
}

// mockQuotaStore applies every mutation under one lock, matching the atomicity of the
// real stores
type mockQuotaStore struct {
	mu     sync.Mutex
	quotas map[quotaKey]*models.DailyQuota
	down   bool
	calls  int32
}

func newMockQuotaStore() *mockQuotaStore {
	return &mockQuotaStore{quotas: make(map[quotaKey]*models.DailyQuota)}
}

func (m *mockQuotaStore) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *mockQuotaStore) exists(userID string, day types.Day) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.quotas[quotaKey{userID, day}]
	return ok
}

func (m *mockQuotaStore) row(userID string, day types.Day) *models.DailyQuota {
	k := quotaKey{userID, day}
	q, ok := m.quotas[k]
	if !ok {
		q = &models.DailyQuota{UserID: userID, Day: day}
		m.quotas[k] = q
	}
	return q
}

func (m *mockQuotaStore) Get(ctx context.Context, userID string, day types.Day) (models.DailyQuota, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return models.DailyQuota{}, storeDown("get daily quota")
	}
	if q, ok := m.quotas[quotaKey{userID, day}]; ok {
		return *q, nil
	}
	return models.DailyQuota{UserID: userID, Day: day}, nil
}

func (m *mockQuotaStore) IncrementSent(ctx context.Context, userID string, day types.Day, baseAllowance int) (models.DailyQuota, bool, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return models.DailyQuota{}, false, storeDown("record send")
	}
	q := m.row(userID, day)
	if q.MessagesSent >= baseAllowance+q.BonusMessages {
		return *q, false, nil
	}
	q.MessagesSent++
	return *q, true, nil
}

func (m *mockQuotaStore) DecrementSent(ctx context.Context, userID string, day types.Day) error {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return storeDown("release send")
	}
	q := m.row(userID, day)
	if q.MessagesSent > 0 {
		q.MessagesSent--
	}
	return nil
}

func (m *mockQuotaStore) AddBonus(ctx context.Context, userID string, day types.Day, amount int) (models.DailyQuota, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return models.DailyQuota{}, storeDown("grant bonus")
	}
	q := m.row(userID, day)
	q.BonusMessages += amount
	return *q, nil
}

type mockPromoRepository struct {
	mu          sync.Mutex
	redemptions map[string]*models.PromoRedemption
}

func newMockPromoRepository() *mockPromoRepository {
	return &mockPromoRepository{redemptions: make(map[string]*models.PromoRedemption)}
}

func (m *mockPromoRepository) Insert(ctx context.Context, redemption *models.PromoRedemption) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := redemption.UserID + "|" + redemption.Code
	if _, ok := m.redemptions[key]; ok {
		return false, nil
	}
	if redemption.ID == "" {
		redemption.ID = uuid.New().String()
	}
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}
	copied := *redemption
	m.redemptions[key] = &copied
	return true, nil
}

func (m *mockPromoRepository) Delete(ctx context.Context, userID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.redemptions, userID+"|"+code)
	return nil
}

func (m *mockPromoRepository) ListByUser(ctx context.Context, userID string) ([]*models.PromoRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.PromoRedemption
	for _, r := range m.redemptions {
		if r.UserID == userID {
			copied := *r
			result = append(result, &copied)
		}
	}
	return result, nil
}

type mockBeerRepository struct {
	mu    sync.Mutex
	beers map[string]*models.Beer
}

func newMockBeerRepository() *mockBeerRepository {
	return &mockBeerRepository{beers: make(map[string]*models.Beer)}
}

func (m *mockBeerRepository) Create(ctx context.Context, beer *models.Beer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if beer.ID == "" {
		beer.ID = uuid.New().String()
	}
	if beer.CreatedAt.IsZero() {
		beer.CreatedAt = time.Now().UTC()
	}
	copied := *beer
	m.beers[beer.ID] = &copied
	return nil
}

func (m *mockBeerRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.beers, id)
	return nil
}

func (m *mockBeerRepository) ListReceived(ctx context.Context, recipientID string) ([]*models.Beer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Beer
	for _, b := range m.beers {
		if b.RecipientID == recipientID {
			copied := *b
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockBeerRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.beers)
}

type mockActivityRecorder struct {
	mu     sync.Mutex
	events []models.ActivityEvent
}

func (m *mockActivityRecorder) Record(event models.ActivityEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return true
}

func (m *mockActivityRecorder) kinds() []models.ActivityKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]models.ActivityKind, 0, len(m.events))
	for _, e := range m.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type mockActivityReader struct {
	summary []models.DailyActivity
	from    types.Day
	to      types.Day
}

func (m *mockActivityReader) DailySummary(ctx context.Context, userID string, from, to types.Day) ([]models.DailyActivity, error) {
	m.from, m.to = from, to
	return m.summary, nil
}

// testEnv bundles a fully wired service layer over in-memory repositories
type testEnv struct {
	clock         *fixedClock
	users         *mockUserRepository
	conversations *mockConversationRepository
	messages      *mockMessageRepository
	quotas        *mockQuotaStore
	promos        *mockPromoRepository
	beers         *mockBeerRepository
	activity      *mockActivityRecorder

	ledger    *QuotaLedger
	messaging *MessagingService
	promo     *PromoService
	userSvc   *UserService
}

func newTestEnv(t interface{ Fatalf(string, ...interface{}) }) *testEnv {
	env := &testEnv{
		clock:         &fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		users:         newMockUserRepository(),
		conversations: newMockConversationRepository(),
		messages:      &mockMessageRepository{},
		quotas:        newMockQuotaStore(),
		promos:        newMockPromoRepository(),
		beers:         newMockBeerRepository(),
		activity:      &mockActivityRecorder{},
	}

	cfg := testQuotaConfig()
	ledger, err := NewQuotaLedger(env.quotas, cfg)
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	ledger.clock = env.clock
	env.ledger = ledger

	env.messaging = NewMessagingService(&MessagingServiceConfig{
		Users:         env.users,
		Conversations: env.conversations,
		Messages:      env.messages,
		Beers:         env.beers,
		Ledger:        ledger,
		BeerBonus:     cfg.BeerBonus,
		Activity:      env.activity,
	})
	env.promo = NewPromoService(env.promos, env.users, ledger, cfg.PromoCodes, env.activity)
	env.userSvc = NewUserService(env.users, ledger, types.DefaultLevelThresholds(), env.activity, nil)

	return env
}

func (e *testEnv) today() types.Day {
	return e.ledger.Today()
}
