package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

func TestEnricherProvider_NilReturnsUnavailable(t *testing.T) {
	p := application.NewEnricherProvider(nil)

	assert.False(t, p.Available())
	_, err := p.Discover(context.Background(), "Facebook", "https://facebook.com")
	assert.ErrorIs(t, err, application.ErrEnricherUnavailable)
}

func TestEnricherProvider_Replace(t *testing.T) {
	first := &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://a.test"}}
	second := &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://b.test"}}
	p := application.NewEnricherProvider(first)

	meta, err := p.Discover(context.Background(), "A", "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "https://a.test", meta.DeletionURL)

	p.Replace(second)
	meta, err = p.Discover(context.Background(), "B", "https://b.test")
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", meta.DeletionURL)

	p.Replace(nil)
	assert.False(t, p.Available())
}

func TestEnricherProvider_ConcurrentAccess(t *testing.T) {
	p := application.NewEnricherProvider(&fakeEnricher{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				p.Replace(&fakeEnricher{})
				return
			}
			_, _ = p.Discover(context.Background(), "x", "https://x.test")
		}()
	}
	wg.Wait()

	assert.True(t, p.Available())
}

func TestCachingEnricher_CachesPerDomain(t *testing.T) {
	oracle := &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://facebook.com/delete", DeletionDifficulty: 4}}
	store := newFakeMetadataStore()
	c := application.NewCachingEnricher(oracle, store, 0, nil)
	ctx := context.Background()

	meta, err := c.Discover(ctx, "Facebook", "https://www.facebook.com/login")
	require.NoError(t, err)
	assert.Equal(t, "facebook.com", meta.Domain)
	assert.Equal(t, 4, meta.DeletionDifficulty)

	_, err = c.Discover(ctx, "Facebook", "https://facebook.com")
	require.NoError(t, err)

	assert.Equal(t, 1, oracle.callCount())
	assert.Equal(t, 1, store.puts)
}

func TestCachingEnricher_StaleEntryRefreshed(t *testing.T) {
	oracle := &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://new.test/delete"}}
	store := newFakeMetadataStore()
	require.NoError(t, store.Put(context.Background(), model.SiteMetadata{
		Domain:      "new.test",
		DeletionURL: "https://new.test/old",
		UpdatedAt:   time.Now().Add(-48 * time.Hour),
	}))
	c := application.NewCachingEnricher(oracle, store, 24*time.Hour, nil)

	meta, err := c.Discover(context.Background(), "New", "https://new.test")
	require.NoError(t, err)

	assert.Equal(t, "https://new.test/delete", meta.DeletionURL)
	assert.Equal(t, 1, oracle.callCount())
}

func TestCachingEnricher_ErrorNotCached(t *testing.T) {
	oracle := &fakeEnricher{err: errors.New("quota exceeded")}
	store := newFakeMetadataStore()
	c := application.NewCachingEnricher(oracle, store, 0, nil)

	_, err := c.Discover(context.Background(), "Facebook", "https://facebook.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, store.puts)
}

func TestCachingEnricher_NoDomainSkipsCache(t *testing.T) {
	oracle := &fakeEnricher{meta: model.SiteMetadata{Instructions: "email support"}}
	store := newFakeMetadataStore()
	c := application.NewCachingEnricher(oracle, store, 0, nil)

	for range 2 {
		_, err := c.Discover(context.Background(), "Local", "localhost")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, oracle.callCount())
	assert.Zero(t, store.puts)
}

// --- Credentials ---

type factoryRecorder struct {
	mu   sync.Mutex
	keys []model.Secret
	err  error
}

func (f *factoryRecorder) build(_ context.Context, key model.Secret) (driven.Enricher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, key)
	return &fakeEnricher{meta: model.SiteMetadata{Instructions: string(key)}}, nil
}

func (f *factoryRecorder) lastKey() model.Secret {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) == 0 {
		return ""
	}
	return f.keys[len(f.keys)-1]
}

func TestCredentialBootstrap_StoredKeyWins(t *testing.T) {
	store := newFakeCredentialStore()
	require.NoError(t, store.Set(context.Background(), application.ServiceGenAI, "stored-key"))
	provider := application.NewEnricherProvider(nil)
	factory := &factoryRecorder{}
	svc := application.NewCredentialService(store, provider, factory.build, &fakeAudit{}, nil)

	require.NoError(t, svc.Bootstrap(context.Background(), "env-key"))

	assert.True(t, provider.Available())
	assert.Equal(t, model.Secret("stored-key"), factory.lastKey())
}

func TestCredentialBootstrap_EnvKeyWithoutEncryptionKey(t *testing.T) {
	store := newFakeCredentialStore()
	store.noKey = true
	provider := application.NewEnricherProvider(nil)
	factory := &factoryRecorder{}
	svc := application.NewCredentialService(store, provider, factory.build, &fakeAudit{}, nil)

	require.NoError(t, svc.Bootstrap(context.Background(), "env-key"))

	assert.Equal(t, model.Secret("env-key"), factory.lastKey())
}

func TestCredentialBootstrap_NoKeyDisablesEnrichment(t *testing.T) {
	provider := application.NewEnricherProvider(&fakeEnricher{})
	svc := application.NewCredentialService(newFakeCredentialStore(), provider, (&factoryRecorder{}).build, &fakeAudit{}, nil)

	require.NoError(t, svc.Bootstrap(context.Background(), ""))

	assert.False(t, provider.Available())
}

func TestCredentialSet_StoresAndSwaps(t *testing.T) {
	store := newFakeCredentialStore()
	provider := application.NewEnricherProvider(nil)
	audit := &fakeAudit{}
	factory := &factoryRecorder{}
	svc := application.NewCredentialService(store, provider, factory.build, audit, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, application.ServiceGenAI, "new-key"))

	assert.True(t, provider.Available())
	got, err := store.Get(ctx, application.ServiceGenAI)
	require.NoError(t, err)
	assert.Equal(t, model.Secret("new-key"), got)

	rec, ok := audit.find(model.AuditCredentialStored)
	require.True(t, ok)
	assert.Equal(t, application.ServiceGenAI, rec.Details["service"])
	assert.NotContains(t, rec.Details, "value")
}

func TestCredentialSet_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown service", func(t *testing.T) {
		svc := application.NewCredentialService(newFakeCredentialStore(), application.NewEnricherProvider(nil), (&factoryRecorder{}).build, nil, nil)
		assert.ErrorIs(t, svc.Set(ctx, "github", "tok"), application.ErrUnknownService)
	})

	t.Run("empty value", func(t *testing.T) {
		svc := application.NewCredentialService(newFakeCredentialStore(), application.NewEnricherProvider(nil), (&factoryRecorder{}).build, nil, nil)
		assert.Error(t, svc.Set(ctx, application.ServiceGenAI, ""))
	})

	t.Run("invalid key leaves current enricher", func(t *testing.T) {
		current := &fakeEnricher{}
		provider := application.NewEnricherProvider(current)
		store := newFakeCredentialStore()
		factory := &factoryRecorder{err: errors.New("API key not valid")}
		svc := application.NewCredentialService(store, provider, factory.build, nil, nil)

		assert.Error(t, svc.Set(ctx, application.ServiceGenAI, "bad"))
		assert.Same(t, current, provider.Get())
		got, err := store.Get(ctx, application.ServiceGenAI)
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("no encryption key", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.noKey = true
		svc := application.NewCredentialService(store, application.NewEnricherProvider(nil), (&factoryRecorder{}).build, nil, nil)
		assert.ErrorIs(t, svc.Set(ctx, application.ServiceGenAI, "k"), driven.ErrEncryptionKeyNotSet)
	})
}

func TestCredentialDelete_FallsBackToEnvKey(t *testing.T) {
	store := newFakeCredentialStore()
	provider := application.NewEnricherProvider(nil)
	factory := &factoryRecorder{}
	audit := &fakeAudit{}
	svc := application.NewCredentialService(store, provider, factory.build, audit, nil)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx, "env-key"))
	require.NoError(t, svc.Set(ctx, application.ServiceGenAI, "stored-key"))

	require.NoError(t, svc.Delete(ctx, application.ServiceGenAI))

	assert.True(t, provider.Available())
	assert.Equal(t, model.Secret("env-key"), factory.lastKey())
	_, ok := audit.find(model.AuditCredentialRemoved)
	assert.True(t, ok)
}
