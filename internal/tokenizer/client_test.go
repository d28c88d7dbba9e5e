package tokenizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/testutil"
)

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func validCard() model.Card {
	return model.Card{
		Number:   "4242 4242 4242 4242",
		CVC:      "123",
		Holder:   "Ana Gomez",
		ExpMonth: 8,
		ExpYear:  2028,
	}
}

func clock() Option {
	return WithClock(func() time.Time { return fixedNow })
}

func TestClient_TokenizeCard(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	client := NewClient(fake.URL(), testutil.TestPublicKey, clock())

	token, err := client.TokenizeCard(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, "tok_test_1", token)

	sent, ok := fake.Tokenized(token)
	require.True(t, ok)
	assert.Equal(t, testutil.TokenizeRequest{
		Number:     "4242424242424242",
		ExpMonth:   "08",
		ExpYear:    "28",
		CVC:        "123",
		CardHolder: "Ana Gomez",
	}, sent)
}

func TestClient_TokenizeCard_Rejections(t *testing.T) {
	tests := []struct {
		card    func() model.Card
		wantErr error
		name    string
		key     string
		fail    int
	}{
		{
			name:    "invalid card never leaves the process",
			key:     testutil.TestPublicKey,
			card:    func() model.Card { c := validCard(); c.CVC = "12"; return c },
			wantErr: common.ErrTokenization,
		},
		{
			name:    "expired card",
			key:     testutil.TestPublicKey,
			card:    func() model.Card { c := validCard(); c.ExpYear = 2025; c.ExpMonth = 5; return c },
			wantErr: common.ErrTokenization,
		},
		{
			name:    "wrong public key",
			key:     "pub_wrong",
			card:    validCard,
			wantErr: common.ErrTokenization,
		},
		{
			name:    "processor rejects",
			key:     testutil.TestPublicKey,
			card:    validCard,
			fail:    1,
			wantErr: common.ErrTokenization,
		},
		{
			name:    "missing key",
			key:     "",
			card:    validCard,
			wantErr: common.ErrMissingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			fake.FailTokenize(tt.fail)
			client := NewClient(fake.URL(), tt.key, clock())

			_, err := client.TokenizeCard(context.Background(), tt.card())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, fake.TokenCount())
		})
	}
}

func TestClient_TokenizeCard_ValidationDetail(t *testing.T) {
	client := NewClient("http://unused.invalid", testutil.TestPublicKey, clock())
	card := validCard()
	card.Number = "3782 822463 10005"

	_, err := client.TokenizeCard(context.Background(), card)

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "number", vErr.Field)
}

func TestClient_TokenizeCard_MissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "pub", clock()).TokenizeCard(context.Background(), validCard())
	require.ErrorIs(t, err, common.ErrBadResponse)
}
