package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/records/memory"
)

func TestLoadIsIdempotent(t *testing.T) {
	st, err := memory.New()
	require.NoError(t, err)
	defer st.Close()
	emb := embedding.NewHashProvider(8)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	sum, err := Load(context.Background(), st, emb, DemoUserID, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Emails: 11, Events: 4, Files: 4}, sum)

	_, err = Load(context.Background(), st, emb, DemoUserID, now)
	require.NoError(t, err)

	all, err := st.KeywordFilter(context.Background(), records.Gmail, DemoUserID, "")
	require.NoError(t, err)
	assert.Len(t, all, 11)

	events, err := st.KeywordFilter(context.Background(), records.GCal, DemoUserID, "tk1234")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, now.AddDate(0, 0, 10).Equal(events[0].Timestamp))
}
