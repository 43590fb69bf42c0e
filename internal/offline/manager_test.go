package offline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/vytor/hanziflash/internal/fetch"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/objecturl"
	"github.com/vytor/hanziflash/internal/offline"
	"github.com/vytor/hanziflash/internal/repository"
	"github.com/vytor/hanziflash/internal/repository/sqlite"
	"github.com/vytor/hanziflash/internal/testutil"
	"github.com/vytor/hanziflash/internal/testutil/mocks"
)

const audioURL = "https://x/a.mp3"

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type ManagerSuite struct {
	suite.Suite
	ctx      context.Context
	storage  repository.Storage
	fetcher  *mocks.MockFetcher
	registry *objecturl.Registry
	manager  *offline.Manager
	events   []models.StatusEvent
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = testutil.NewTestStorage(s.T(), sqlite.Options{})
	s.fetcher = new(mocks.MockFetcher)
	s.registry = objecturl.NewRegistry("")
	s.manager = offline.NewManager(s.storage, s.fetcher,
		offline.WithRegistry(s.registry),
		offline.WithClock(func() time.Time { return fixedNow }),
	)
	s.events = nil
	s.manager.Subscribe(func(ev models.StatusEvent) { s.events = append(s.events, ev) })
}

func (s *ManagerSuite) TearDownTest() {
	s.fetcher.AssertExpectations(s.T())
}

func (s *ManagerSuite) audioOK() {
	s.fetcher.On("Fetch", mock.Anything, audioURL).
		Return(&fetch.Payload{Data: []byte("ID3"), ContentType: "audio/mpeg"}, nil).Once()
}

func (s *ManagerSuite) audio404() {
	s.fetcher.On("Fetch", mock.Anything, audioURL).
		Return(nil, &fetch.StatusError{URL: audioURL, StatusCode: 404}).Once()
}

func (s *ManagerSuite) TestCacheCard_RoundTripsSnapshot() {
	card := testutil.Card("c1", "你好", audioURL)
	card.Comment = models.StringPtr("hello")
	card.ReferenceID = models.StringPtr("cedict-7")
	s.audioOK()

	res, err := s.manager.CacheCard(s.ctx, card, []string{"col-a"})
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusEvent{CardID: "c1", Cached: true, AudioStored: true}, res)

	got, found, err := s.manager.GetOfflineCard(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Assert().Equal(card, *got)
}

func (s *ManagerSuite) TestCacheCard_AudioSuccessScenario() {
	s.audioOK()

	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)

	snapshot, err := s.manager.GetOfflineStatusSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal(map[string]models.OfflineStatus{"c1": {AudioStored: true}}, snapshot)

	audio, err := s.storage.Audio().Get(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal("audio/mpeg", audio.MimeType)
	s.Assert().Equal(fixedNow, audio.CapturedAt.UTC())
}

func (s *ManagerSuite) TestCacheCard_Audio404Scenario() {
	s.audio404()

	res, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	s.Assert().False(res.AudioStored)

	snapshot, err := s.manager.GetOfflineStatusSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal(map[string]models.OfflineStatus{"c1": {AudioStored: false}}, snapshot)

	_, found, err := s.manager.GetOfflineCard(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().True(found)
}

func (s *ManagerSuite) TestRecacheWithFailingAudio_KeepsCardDropsAudio() {
	card := testutil.Card("c1", "你好", audioURL)
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)

	s.audio404()
	res, err := s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusEvent{CardID: "c1", Cached: true, AudioStored: false}, res)

	_, found, err := s.manager.GetOfflineCard(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().True(found)

	audio, err := s.storage.Audio().Get(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Nil(audio)
}

func (s *ManagerSuite) TestCacheCard_NoAudioURL() {
	card := testutil.Card("c1", "你好", audioURL)
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)

	card.AudioURL = nil
	res, err := s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)
	s.Assert().False(res.AudioStored)

	s.Assert().Equal("", s.manager.GetPlayableAudioURL(s.ctx, "c1", ""))
	keys, err := s.storage.Audio().Keys(s.ctx)
	s.Require().NoError(err)
	s.Assert().Empty(keys)
}

func (s *ManagerSuite) TestPlayableAudioURL() {
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)

	url := s.manager.GetPlayableAudioURL(s.ctx, "c1", audioURL)
	s.Assert().NotEqual(audioURL, url)
	blob, ok := s.registry.Resolve(url)
	s.Require().True(ok)
	s.Assert().Equal([]byte("ID3"), blob.Data)
	s.Assert().Equal("audio/mpeg", blob.MimeType)

	s.Assert().Equal(url, s.manager.GetPlayableAudioURL(s.ctx, "c1", audioURL), "handle is reused")
	s.Assert().Equal(1, s.registry.Len())

	s.Assert().Equal("https://x/other.mp3", s.manager.GetPlayableAudioURL(s.ctx, "c2", "https://x/other.mp3"))
	s.Assert().Equal("", s.manager.GetPlayableAudioURL(s.ctx, "c2", ""))
}

func (s *ManagerSuite) TestRecache_ReleasesStaleHandle() {
	card := testutil.Card("c1", "你好", audioURL)
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)
	stale := s.manager.GetPlayableAudioURL(s.ctx, "c1", "")

	s.audioOK()
	_, err = s.manager.CacheCard(s.ctx, card, nil)
	s.Require().NoError(err)

	_, ok := s.registry.Resolve(stale)
	s.Assert().False(ok)
	s.Assert().Zero(s.registry.Len())

	fresh := s.manager.GetPlayableAudioURL(s.ctx, "c1", "")
	s.Assert().NotEqual(stale, fresh)
	s.Assert().Equal(1, s.registry.Len())
}

func (s *ManagerSuite) TestRemoveCardFromOffline() {
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	url := s.manager.GetPlayableAudioURL(s.ctx, "c1", "")
	s.events = nil

	res, err := s.manager.RemoveCardFromOffline(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusEvent{CardID: "c1"}, res)

	_, found, err := s.manager.GetOfflineCard(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().False(found)

	snapshot, err := s.manager.GetOfflineStatusSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Assert().NotContains(snapshot, "c1")

	_, ok := s.registry.Resolve(url)
	s.Assert().False(ok)

	_, err = s.manager.RemoveCardFromOffline(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal([]models.StatusEvent{{CardID: "c1"}, {CardID: "c1"}}, s.events)
}

func (s *ManagerSuite) TestSubscribe_ExactlyOneEvent() {
	var got []models.StatusEvent
	unsubscribe := s.manager.Subscribe(func(ev models.StatusEvent) { got = append(got, ev) })

	s.audio404()
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	s.Assert().Equal([]models.StatusEvent{{CardID: "c1", Cached: true, AudioStored: false}}, got)

	unsubscribe()
	s.audioOK()
	_, err = s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	s.Assert().Len(got, 1)
}

func (s *ManagerSuite) TestEventFollowsCommit() {
	var seen *models.Card
	s.manager.Subscribe(func(ev models.StatusEvent) {
		card, _, err := s.manager.GetOfflineCard(s.ctx, ev.CardID)
		s.Require().NoError(err)
		seen = card
	})

	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	s.Require().NotNil(seen)
	s.Assert().Equal("c1", seen.ID)
}

func (s *ManagerSuite) TestUpdateCachedCardCollections() {
	card := testutil.Card("c1", "你好", "")
	_, err := s.manager.CacheCard(s.ctx, card, []string{"col-a"})
	s.Require().NoError(err)

	s.Require().NoError(s.manager.UpdateCachedCardCollections(s.ctx, "c1", []string{"col-b"}))
	s.Require().NoError(s.manager.UpdateCachedCardCollections(s.ctx, "c2", []string{"col-a"}))

	membership, err := s.manager.GetOfflineCardCollections(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal(map[string][]string{"c1": {"col-b"}}, membership)
	s.Assert().NotContains(membership, "c2")

	got, _, err := s.manager.GetOfflineCard(s.ctx, "c1")
	s.Require().NoError(err)
	s.Assert().Equal(card, *got)
}

func (s *ManagerSuite) TestGetAllOfflineCards() {
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", ""), nil)
	s.Require().NoError(err)
	_, err = s.manager.CacheCard(s.ctx, testutil.Card("c2", "谢谢", ""), []string{"col-a"})
	s.Require().NoError(err)

	cards, err := s.manager.GetAllOfflineCards(s.ctx)
	s.Require().NoError(err)
	ids := []string{}
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	s.Assert().ElementsMatch([]string{"c1", "c2"}, ids)

	membership, err := s.manager.GetOfflineCardCollections(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal(map[string][]string{"c1": {}, "c2": {"col-a"}}, membership)
}

func (s *ManagerSuite) TestCollections() {
	hsk := models.Collection{ID: "col-a", Name: "HSK 1", Color: models.StringPtr("#ff0000")}
	s.Require().NoError(s.manager.UpsertCollectionsOffline(s.ctx, []models.Collection{hsk}))

	renamed := models.Collection{ID: "col-a", Name: "HSK level 1"}
	food := models.Collection{ID: "col-b", Name: "Food"}
	s.Require().NoError(s.manager.UpsertCollectionsOffline(s.ctx, []models.Collection{renamed, food}))

	got, err := s.manager.GetOfflineCollections(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]models.Collection{food, renamed}, got)

	s.Require().NoError(s.manager.RemoveCollectionOffline(s.ctx, "col-b"))
	got, err = s.manager.GetOfflineCollections(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]models.Collection{renamed}, got)
}

func (s *ManagerSuite) TestClearOfflineCache() {
	s.audioOK()
	_, err := s.manager.CacheCard(s.ctx, testutil.Card("c1", "你好", audioURL), nil)
	s.Require().NoError(err)
	_, err = s.manager.CacheCard(s.ctx, testutil.Card("c2", "谢谢", ""), nil)
	s.Require().NoError(err)
	s.Require().NoError(s.manager.UpsertCollectionsOffline(s.ctx, []models.Collection{{ID: "col-a", Name: "A"}}))
	s.manager.GetPlayableAudioURL(s.ctx, "c1", "")
	s.events = nil

	s.Require().NoError(s.manager.ClearOfflineCache(s.ctx))

	snapshot, err := s.manager.GetOfflineStatusSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Assert().Empty(snapshot)
	s.Assert().Zero(s.registry.Len())
	s.Assert().ElementsMatch([]models.StatusEvent{{CardID: "c1"}, {CardID: "c2"}}, s.events)

	collections, err := s.manager.GetOfflineCollections(s.ctx)
	s.Require().NoError(err)
	s.Assert().Len(collections, 1)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

type failingAudio struct {
	repository.AudioStore
	err error
}

func (f failingAudio) Put(context.Context, models.CachedAudio) error { return f.err }

type failingStorage struct {
	repository.Storage
	audio repository.AudioStore
}

func (f failingStorage) Audio() repository.AudioStore { return f.audio }

func TestCacheCard_StorageFailurePropagates(t *testing.T) {
	ctx := context.Background()
	base := testutil.NewTestStorage(t, sqlite.Options{})
	quota := errors.New("disk full")
	storage := failingStorage{Storage: base, audio: failingAudio{AudioStore: base.Audio(), err: quota}}

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, audioURL).Return(&fetch.Payload{Data: []byte("ID3")}, nil)
	m := offline.NewManager(storage, fetcher)

	emitted := 0
	m.Subscribe(func(models.StatusEvent) { emitted++ })

	_, err := m.CacheCard(ctx, testutil.Card("c1", "你好", audioURL), nil)
	if !errors.Is(err, quota) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if emitted != 0 {
		t.Fatalf("expected no event, got %d", emitted)
	}
	if _, found, _ := m.GetOfflineCard(ctx, "c1"); found {
		t.Fatalf("card record must not be written after audio failure")
	}
}

func TestManager_WithoutStorage(t *testing.T) {
	ctx := context.Background()
	fetcher := new(mocks.MockFetcher)
	m := offline.NewManager(repository.Unavailable(), fetcher)
	emitted := 0
	m.Subscribe(func(models.StatusEvent) { emitted++ })

	if m.Available() {
		t.Fatal("manager must report unavailable storage")
	}

	res, err := m.CacheCard(ctx, testutil.Card("c1", "你好", audioURL), []string{"col-a"})
	if err != nil || res != (models.StatusEvent{}) {
		t.Fatalf("CacheCard: got %+v, %v", res, err)
	}
	res, err = m.RemoveCardFromOffline(ctx, "c1")
	if err != nil || res != (models.StatusEvent{}) {
		t.Fatalf("RemoveCardFromOffline: got %+v, %v", res, err)
	}
	card, found, err := m.GetOfflineCard(ctx, "c1")
	if err != nil || found || card != nil {
		t.Fatalf("GetOfflineCard: got %v, %t, %v", card, found, err)
	}
	cards, err := m.GetAllOfflineCards(ctx)
	if err != nil || len(cards) != 0 {
		t.Fatalf("GetAllOfflineCards: got %v, %v", cards, err)
	}
	membership, err := m.GetOfflineCardCollections(ctx)
	if err != nil || len(membership) != 0 {
		t.Fatalf("GetOfflineCardCollections: got %v, %v", membership, err)
	}
	if err := m.UpdateCachedCardCollections(ctx, "c1", nil); err != nil {
		t.Fatalf("UpdateCachedCardCollections: %v", err)
	}
	if err := m.UpsertCollectionsOffline(ctx, []models.Collection{{ID: "col-a"}}); err != nil {
		t.Fatalf("UpsertCollectionsOffline: %v", err)
	}
	collections, err := m.GetOfflineCollections(ctx)
	if err != nil || len(collections) != 0 {
		t.Fatalf("GetOfflineCollections: got %v, %v", collections, err)
	}
	if got := m.GetPlayableAudioURL(ctx, "c1", audioURL); got != audioURL {
		t.Fatalf("GetPlayableAudioURL: got %q", got)
	}
	snapshot, err := m.GetOfflineStatusSnapshot(ctx)
	if err != nil || len(snapshot) != 0 {
		t.Fatalf("GetOfflineStatusSnapshot: got %v, %v", snapshot, err)
	}
	if err := m.ClearOfflineCache(ctx); err != nil {
		t.Fatalf("ClearOfflineCache: %v", err)
	}
	if emitted != 0 {
		t.Fatalf("expected no events, got %d", emitted)
	}
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

type slowAudio struct {
	repository.AudioStore
	delay time.Duration
}

func (s slowAudio) Get(ctx context.Context, cardID string) (*models.CachedAudio, error) {
	time.Sleep(s.delay)
	return s.AudioStore.Get(ctx, cardID)
}

func TestGetPlayableAudioURL_ConcurrentCallersShareLiveURL(t *testing.T) {
	ctx := context.Background()
	base := testutil.NewTestStorage(t, sqlite.Options{})
	storage := failingStorage{Storage: base, audio: slowAudio{AudioStore: base.Audio(), delay: 2 * time.Millisecond}}

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, audioURL).Return(&fetch.Payload{Data: []byte("ID3"), ContentType: "audio/mpeg"}, nil)
	registry := objecturl.NewRegistry("")
	m := offline.NewManager(storage, fetcher, offline.WithRegistry(registry))

	_, err := m.CacheCard(ctx, testutil.Card("c1", "你好", audioURL), nil)
	require.NoError(t, err)

	const callers = 8
	start := make(chan struct{})
	urls := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			urls[i] = m.GetPlayableAudioURL(ctx, "c1", "")
		}(i)
	}
	close(start)
	wg.Wait()

	for _, url := range urls {
		require.NotEmpty(t, url)
		blob, ok := registry.Resolve(url)
		assert.True(t, ok, "url %s must resolve", url)
		assert.Equal(t, "ID3", string(blob.Data))
	}
	assert.Equal(t, 1, registry.Len())
}

func TestGetPlayableAudioURL_RecacheDuringLoadServesNewAudio(t *testing.T) {
	ctx := context.Background()
	base := testutil.NewTestStorage(t, sqlite.Options{})
	audio := &recachingAudio{AudioStore: base.Audio()}
	storage := failingStorage{Storage: base, audio: audio}

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, audioURL).Return(&fetch.Payload{Data: []byte("old"), ContentType: "audio/mpeg"}, nil).Once()
	fetcher.On("Fetch", mock.Anything, audioURL).Return(&fetch.Payload{Data: []byte("new"), ContentType: "audio/mpeg"}, nil).Once()
	registry := objecturl.NewRegistry("")
	m := offline.NewManager(storage, fetcher, offline.WithRegistry(registry))

	card := testutil.Card("c1", "你好", audioURL)
	_, err := m.CacheCard(ctx, card, nil)
	require.NoError(t, err)

	// The first read returns the old bytes, then the card is re-cached
	// before the URL is registered.
	audio.onFirstGet = func() {
		_, err := m.CacheCard(ctx, card, nil)
		require.NoError(t, err)
	}

	url := m.GetPlayableAudioURL(ctx, "c1", "")
	blob, ok := registry.Resolve(url)
	require.True(t, ok)
	assert.Equal(t, "new", string(blob.Data))
	assert.Equal(t, 1, registry.Len())
	fetcher.AssertExpectations(t)
}

type recachingAudio struct {
	repository.AudioStore
	onFirstGet func()
	gets       int
}

func (r *recachingAudio) Get(ctx context.Context, cardID string) (*models.CachedAudio, error) {
	a, err := r.AudioStore.Get(ctx, cardID)
	r.gets++
	if r.gets == 1 && r.onFirstGet != nil {
		r.onFirstGet()
	}
	return a, err
}
