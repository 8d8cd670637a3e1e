package whatsapp_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NotConfigured(t *testing.T) {
	_, err := whatsapp.New(whatsapp.Config{PhoneNumberID: "123"}, nil)
	assert.ErrorIs(t, err, integration.ErrNotConfigured)
}

func TestSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/1098765/messages", r.URL.Path)
		assert.Equal(t, "Bearer EAAG-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.HBgL"}]}`))
	}))
	defer srv.Close()

	c, err := whatsapp.New(whatsapp.Config{AccessToken: "EAAG-token", PhoneNumberID: "1098765", APIBase: srv.URL + "/v21.0/"}, srv.Client())
	require.NoError(t, err)

	id, err := c.SendText(t.Context(), "33612345678", "Votre devis est prêt")
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgL", id)
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "33612345678", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, "Votre devis est prêt", got["text"].(map[string]any)["body"])
}

func TestSendTemplate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.T"}]}`))
	}))
	defer srv.Close()

	c, err := whatsapp.New(whatsapp.Config{AccessToken: "t", PhoneNumberID: "1", APIBase: srv.URL}, nil)
	require.NoError(t, err)

	id, err := c.SendTemplate(t.Context(), "33612345678", "rappel_rdv", "fr", "Paul", "lundi 9h")
	require.NoError(t, err)
	assert.Equal(t, "wamid.T", id)

	tpl := got["template"].(map[string]any)
	assert.Equal(t, "rappel_rdv", tpl["name"])
	assert.Equal(t, "fr", tpl["language"].(map[string]any)["code"])
	params := tpl["components"].([]any)[0].(map[string]any)["parameters"].([]any)
	assert.Len(t, params, 2)
}

func TestSend_ProviderErrorPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	c, err := whatsapp.New(whatsapp.Config{AccessToken: "bad", PhoneNumberID: "1", APIBase: srv.URL}, nil)
	require.NoError(t, err)

	_, err = c.SendText(t.Context(), "33600000000", "x")
	var upstream *integration.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
	assert.Equal(t, "Error validating access token", upstream.Message)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, whatsapp.VerifySignature("app-secret", body, header))
	assert.False(t, whatsapp.VerifySignature("other", body, header))
	assert.False(t, whatsapp.VerifySignature("app-secret", []byte("tampered"), header))
	assert.False(t, whatsapp.VerifySignature("app-secret", body, "md5=abc"))
}

func TestVerifyChallenge(t *testing.T) {
	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"tok"}, "hub.challenge": {"1158201444"}}
	challenge, ok := whatsapp.VerifyChallenge(q, "tok")
	assert.True(t, ok)
	assert.Equal(t, "1158201444", challenge)

	_, ok = whatsapp.VerifyChallenge(q, "other")
	assert.False(t, ok)
	_, ok = whatsapp.VerifyChallenge(q, "")
	assert.False(t, ok)
	q.Set("hub.mode", "unsubscribe")
	_, ok = whatsapp.VerifyChallenge(q, "tok")
	assert.False(t, ok)
}

func TestPayloadMessages(t *testing.T) {
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"contacts":[{"wa_id":"33612345678","profile":{"name":"Paul Durand"}}],
		"messages":[{"from":"33612345678","id":"wamid.IN","timestamp":"1767225600","type":"text","text":{"body":"Bonjour, le devis me convient"}},
		            {"from":"33612345678","id":"wamid.IMG","timestamp":"1767225601","type":"image"}],
		"statuses":[{"id":"wamid.OUT","status":"delivered","timestamp":"1767225602","recipient_id":"33612345678"}]}}]}]}`
	var p whatsapp.Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Paul Durand", msgs[0].SenderName)
	assert.Equal(t, "Bonjour, le devis me convient", msgs[0].Body())
	assert.Equal(t, "[image]", msgs[1].Body())

	st := p.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, "delivered", st[0].Status)
}
