package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/search"
)

type scriptedClient struct {
	reply string
	err   error
	calls int
}

func (c *scriptedClient) Chat(_ context.Context, _ []Message, _ ChatOptions) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *scriptedClient) Available(context.Context) error { return c.err }

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, ExtractJSONArray("Here is the plan:\n```json\n[{\"a\":1}]\n```"))
	assert.Equal(t, "", ExtractJSONArray("no array here"))
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"scores":[]}`, ExtractJSONObject("sure: {\"scores\":[]} done"))
	assert.Equal(t, "", ExtractJSONObject("]["))
}

func TestOllamaClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		w.Write([]byte(`{"message":{"role":"assistant","content":"  Torque is 25 Nm.  "}}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "qwen3:4b", 0)
	out, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Torque is 25 Nm.", out)
}

func TestOllamaClientChatEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":""}}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "qwen3:4b", 0)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
}

func TestDrafterBuildsGroundedPrompt(t *testing.T) {
	client := &scriptedClient{reply: "Tighten to 25 Nm per the table on page 12."}
	drafter := NewDrafter(client)

	out, err := drafter.Draft(context.Background(), "impeller torque?", []search.EvidenceHit{
		{Chunk: model.Chunk{DocID: "pump-900", PageStart: 12}, Snippet: "Impeller bolt | Torque | 25 Nm"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tighten to 25 Nm per the table on page 12.", out)
	assert.Equal(t, 1, client.calls)
}

func rerankHits() []search.EvidenceHit {
	return []search.EvidenceHit{
		{Chunk: model.Chunk{ChunkID: "a", ContentText: "Impeller bolt torque 25 Nm"}, Score: 0.9,
			Snippet: "Impeller bolt torque 25 Nm"},
		{Chunk: model.Chunk{ChunkID: "b", ContentText: "Safety notices and storage"}, Score: 0.4,
			Snippet: "Safety notices and storage"},
	}
}

func TestRerankerParsesModelScores(t *testing.T) {
	client := &scriptedClient{reply: `Sure: {"scores":[{"chunk_id":"a","score":0.95},{"chunk_id":"b","score":1.7}]}`}
	reranker := NewOllamaReranker(client, nil)

	scores, err := reranker.Rerank(context.Background(), "impeller torque", rerankHits(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0.95, scores["a"])
	assert.Equal(t, 1.0, scores["b"], "scores clamp to [0,1]")
}

func TestRerankerFallsBackOnModelFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	reranker := NewOllamaReranker(client, nil)

	scores, err := reranker.Rerank(context.Background(), "impeller torque", rerankHits(), 10)
	require.NoError(t, err)

	// Anchors: impeller, torque. Chunk a matches both (overlap 1.0),
	// chunk b matches none. Blend 0.6*overlap + 0.4*prior.
	assert.Equal(t, 0.96, scores["a"])
	assert.Equal(t, 0.16, scores["b"])
}

func TestRerankerFallsBackOnGarbageOutput(t *testing.T) {
	client := &scriptedClient{reply: "I cannot rank these."}
	reranker := NewOllamaReranker(client, nil)

	scores, err := reranker.Rerank(context.Background(), "impeller torque", rerankHits(), 10)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
	assert.Greater(t, scores["a"], scores["b"])
}

func TestRerankerHonorsTopK(t *testing.T) {
	client := &scriptedClient{err: errors.New("offline")}
	reranker := NewOllamaReranker(client, nil)

	scores, err := reranker.Rerank(context.Background(), "impeller torque", rerankHits(), 1)
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestCaptionerRequiresImage(t *testing.T) {
	captioner := NewVisionCaptioner(&scriptedClient{reply: "A wiring diagram."}, "llava:7b")
	_, err := captioner.Caption(context.Background(), nil, "")
	require.Error(t, err)

	out, err := captioner.Caption(context.Background(), []byte{0x89, 0x50}, "terminal block")
	require.NoError(t, err)
	assert.Equal(t, "A wiring diagram.", out)
}
