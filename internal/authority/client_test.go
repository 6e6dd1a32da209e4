package authority

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/artpar/kith/internal/authority/authoritytest"
	"github.com/artpar/kith/internal/core"
)

func newTestClient(t *testing.T, opts ...Option) (*Client, *authoritytest.Server) {
	t.Helper()
	srv := authoritytest.New()
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(srv.URL, opts...), srv
}

func TestClient_LikeUnlike(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "hello", 3)
	ctx := context.Background()

	res, err := c.TurnOn(ctx, core.RelationLiked, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.ResultApplied, res.Kind)
	require.NotNil(t, res.Count)
	assert.Equal(t, 4, *res.Count)
	assert.True(t, srv.IsLiked("p1"))

	res, err = c.TurnOff(ctx, core.RelationLiked, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, *res.Count)

	last := srv.LastRequest()
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, "/api/posts/p1/like", last.Path)
}

func TestClient_AlreadyLikedIsSemanticSuccess(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "hello", 1)
	srv.SetLiked("p1", true)

	res, err := c.TurnOn(context.Background(), core.RelationLiked, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.ResultAlreadyOn, res.Kind)

	srv.SetLiked("p1", false)
	res, err = c.TurnOff(context.Background(), core.RelationLiked, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.ResultAlreadyOff, res.Kind)
}

func TestClient_Connect(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetMe("me")
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	srv.AddUser("2", "carol", "Carol", core.StatusIncoming)
	ctx := context.Background()

	res, err := c.TurnOn(ctx, core.RelationConnected, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.ResultApplied, res.Kind)
	assert.Equal(t, core.StatusPending, res.Status)

	// Second request is "already requested", not a failure
	res, err = c.TurnOn(ctx, core.RelationConnected, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.ResultPending, res.Kind)
	assert.Equal(t, core.StatusPending, res.Status)

	res, err = c.TurnOn(ctx, core.RelationConnected, "me")
	require.NoError(t, err)
	assert.Equal(t, core.ResultSelf, res.Kind)

	res, err = c.Accept(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, core.StatusConnected, res.Status)
	assert.Equal(t, core.StatusConnected, srv.Status("carol"))

	res, err = c.TurnOff(ctx, core.RelationConnected, "carol")
	require.NoError(t, err)
	assert.Equal(t, core.ResultApplied, res.Kind)
	assert.Equal(t, core.StatusNone, srv.Status("carol"))

	res, err = c.TurnOff(ctx, core.RelationConnected, "carol")
	require.NoError(t, err)
	assert.Equal(t, core.ResultAlreadyOff, res.Kind)
}

func TestClient_MessageOnlyErrors(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	ctx := context.Background()

	srv.FailNext(authoritytest.Failure{Status: http.StatusBadRequest, Message: "Request already sent"})
	res, err := c.TurnOn(ctx, core.RelationConnected, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.ResultPending, res.Kind)

	srv.FailNext(authoritytest.Failure{Status: http.StatusBadRequest, Raw: `{"message":"You cannot connect with yourself"}`})
	res, err = c.TurnOn(ctx, core.RelationConnected, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.ResultSelf, res.Kind)
}

func TestClient_FailuresAreErrors(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "hello", 0)

	srv.FailNext(authoritytest.Failure{Status: http.StatusInternalServerError, Code: "internal", Message: "boom"})
	_, err := c.TurnOn(context.Background(), core.RelationLiked, "p1")
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "internal", apiErr.Code)
	assert.Equal(t, "boom", apiErr.Message)
	assert.False(t, srv.IsLiked("p1"))
}

func TestClient_MalformedResponse(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	ctx := context.Background()

	srv.FailNext(authoritytest.Failure{Status: http.StatusOK, Raw: "<html>gateway</html>"})
	_, err := c.TurnOn(ctx, core.RelationLiked, "p1")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	srv.FailNext(authoritytest.Failure{Status: http.StatusOK, Raw: `{"status":"frenemies"}`})
	_, err = c.TurnOn(ctx, core.RelationConnected, "bob")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	srv.FailNext(authoritytest.Failure{Status: http.StatusOK, Raw: `{"results":"nope"}`})
	_, err = c.Search(ctx, "bob")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_Timeout(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "hello", 0)
	srv.SetDelay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.TurnOn(ctx, core.RelationLiked, "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Search(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetMe("bobby")
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	srv.AddUser("2", "bobby", "Bobby", core.StatusNone)
	srv.AddUser("3", "carol", "Carol", core.StatusConnected)

	results, err := c.Search(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bob", results[0].Username)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, core.StatusNone, results[0].Status)
	assert.Equal(t, core.StatusSelf, results[1].Status)

	assert.Equal(t, "q=bob", srv.LastRequest().Query)
}

func TestClient_SearchNumericIDs(t *testing.T) {
	c, srv := newTestClient(t)
	srv.FailNext(authoritytest.Failure{
		Status: http.StatusOK,
		Raw:    `{"results":[{"id":1,"displayName":"Bob","status":"none"}]}`,
	})

	results, err := c.Search(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "1", results[0].Key())
}

func TestClient_FetchRelationState(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "hello", 5)
	srv.SetLiked("p1", true)
	srv.AddUser("1", "bob", "Bob", core.StatusPending)
	ctx := context.Background()

	snap, err := c.FetchRelationState(ctx, core.RelationLiked, "p1")
	require.NoError(t, err)
	require.NotNil(t, snap.Value)
	assert.True(t, *snap.Value)
	assert.Equal(t, 5, *snap.Count)

	snap, err = c.FetchRelationState(ctx, core.RelationLiked, "missing")
	require.NoError(t, err)
	assert.Nil(t, snap.Value)

	snap, err = c.FetchRelationState(ctx, core.RelationConnected, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, snap.Status)
	assert.True(t, *snap.Value)
}

func TestClient_Feed(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddPost("p1", "ana", "first", 2)
	srv.AddPost("p2", "ben", "second", 0)
	srv.SetLiked("p2", true)

	posts, err := c.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "first", posts[0].Body)
	assert.False(t, *posts[0].Liked)
	assert.True(t, *posts[1].Liked)
}

func TestClient_Token(t *testing.T) {
	srv := authoritytest.New()
	defer srv.Close()
	srv.SetToken("s3cret")

	_, err := New(srv.URL).Feed(context.Background())
	assert.True(t, IsUnauthorized(err))

	_, err = New(srv.URL, WithToken("s3cret")).Feed(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", srv.LastRequest().Headers.Get("Authorization"))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "social.example.com", Origin("https://Social.Example.com/api"))
	assert.Equal(t, "127.0.0.1:8080", Origin("http://127.0.0.1:8080"))
	assert.Equal(t, "not a url", Origin("not a url"))
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Error
	}{
		{"envelope", `{"error":{"code":"x","message":"y"}}`, Error{StatusCode: 400, Code: "x", Message: "y"}},
		{"string envelope", `{"error":"y"}`, Error{StatusCode: 400, Message: "y"}},
		{"flat", `{"code":"x","message":"y"}`, Error{StatusCode: 400, Code: "x", Message: "y"}},
		{"plain text", "  bad gateway \n", Error{StatusCode: 400, Message: "bad gateway"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseError(400, []byte(tt.body))
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestClassify(t *testing.T) {
	res, ok := classify(core.RelationConnected, true, &Error{Code: CodeAlreadyRequested})
	assert.True(t, ok)
	assert.Equal(t, core.ResultPending, res.Kind)

	res, ok = classify(core.RelationConnected, true, &Error{Code: CodeAlreadyConnected})
	assert.True(t, ok)
	assert.Equal(t, core.ResultAlreadyOn, res.Kind)
	assert.Equal(t, core.StatusConnected, res.Status)

	_, ok = classify(core.RelationLiked, true, &Error{Message: "Request already sent"})
	assert.False(t, ok)

	_, ok = classify(core.RelationConnected, true, &Error{StatusCode: 500, Message: "internal"})
	assert.False(t, ok)
}
