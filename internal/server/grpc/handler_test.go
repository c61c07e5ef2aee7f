package grpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/accounts"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/media"
	"github.com/dmitrijs2005/vehiclecheck/internal/wire"
)

func dataMessage(t *testing.T, coll, id string, data map[string]any) *structpb.Struct {
	t.Helper()
	enc, err := wire.EncodeData(data)
	require.NoError(t, err)
	msg := wire.NewMessage(wire.KeyCollection, coll, wire.KeyID, id)
	msg.Fields[wire.KeyData] = structpb.NewStructValue(enc)
	return msg
}

func TestPing(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.Ping(context.Background(), &structpb.Struct{})

	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, wire.String(resp, wire.KeyStatus))
}

func TestSignIn(t *testing.T) {
	s, fa, _ := newTestServer(t)
	req := wire.NewMessage(wire.KeyEmail, "a@b.io", wire.KeySecret, "secret")

	fa.session = &accounts.Session{UserID: "u1", Email: "a@b.io", AccessToken: "at", RefreshToken: "rt"}
	resp, err := s.SignIn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u1", wire.String(resp, wire.KeyUserID))
	assert.Equal(t, "a@b.io", wire.String(resp, wire.KeyEmail))
	assert.Equal(t, "at", wire.String(resp, wire.KeyAccessToken))
	assert.Equal(t, "rt", wire.String(resp, wire.KeyRefreshToken))

	fa.session, fa.err = nil, common.ErrorUnauthorized
	_, err = s.SignIn(context.Background(), req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSignUp_EmailInUse(t *testing.T) {
	s, fa, _ := newTestServer(t)
	fa.err = fmt.Errorf("create account: %w", common.ErrorAlreadyExists)

	_, err := s.SignUp(context.Background(), wire.NewMessage(wire.KeyEmail, "a@b.io", wire.KeySecret, "secret"))

	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestRefreshToken_Expired(t *testing.T) {
	s, fa, _ := newTestServer(t)
	fa.err = common.ErrRefreshTokenExpired

	_, err := s.RefreshToken(context.Background(), wire.NewMessage(wire.KeyRefreshToken, "old"))

	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, common.ErrRefreshTokenExpired.Error(), status.Convert(err).Message())
}

func TestAccountRPCs_UseCallerID(t *testing.T) {
	s, fa, _ := newTestServer(t)
	ctx := asUser("u1", "a@b.io")

	_, err := s.Reauthenticate(ctx, wire.NewMessage(wire.KeySecret, "secret"))
	require.NoError(t, err)
	assert.Equal(t, "u1", fa.reauthUser)

	_, err = s.DeleteAccount(ctx, &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, "u1", fa.deleted)

	_, err = s.DeleteAccount(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	s, fa, _ := newTestServer(t)
	fa.err = common.ErrorNotFound

	_, err := s.RequestPasswordReset(context.Background(), wire.NewMessage(wire.KeyEmail, "nobody@b.io"))

	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, "nobody@b.io", fa.resetEmail)
}

func TestGetDocument(t *testing.T) {
	s, _, store := newTestServer(t)
	seed(t, store, common.CollectionUsers, "u1", map[string]any{"name": "Sophia", "email": "a@b.io"})
	ctx := asUser("u1", "a@b.io")

	resp, err := s.GetDocument(ctx, wire.NewMessage(wire.KeyCollection, common.CollectionUsers, wire.KeyID, "u1"))
	require.NoError(t, err)

	doc, err := wire.DecodeDocument(structpb.NewStructValue(resp))
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "Sophia", doc.String("name"))

	_, err = s.GetDocument(ctx, wire.NewMessage(wire.KeyCollection, common.CollectionUsers, wire.KeyID, "missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = s.GetDocument(ctx, wire.NewMessage(wire.KeyCollection, common.CollectionUsers))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestQueryDocuments(t *testing.T) {
	s, _, store := newTestServer(t)
	seed(t, store, common.CollectionInspections, "i1", map[string]any{"userId": "u1", "registration": "AB12"})
	seed(t, store, common.CollectionInspections, "i2", map[string]any{"userId": "u2", "registration": "CD34"})

	q, err := wire.EncodeQuery(docstore.Query{
		Collection: common.CollectionInspections,
		Filters:    []docstore.Filter{docstore.Where("userId", "u1")},
	})
	require.NoError(t, err)

	resp, err := s.QueryDocuments(asUser("u1", ""), &structpb.Struct{Fields: map[string]*structpb.Value{wire.KeyQuery: q}})
	require.NoError(t, err)

	docs, err := wire.DecodeDocuments(resp.GetFields()[wire.KeyDocs])
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "i1", docs[0].ID)

	_, err = s.QueryDocuments(asUser("u1", ""), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAddDocument_Ownership(t *testing.T) {
	s, _, store := newTestServer(t)
	ctx := asUser("u1", "a@b.io")

	resp, err := s.AddDocument(ctx, dataMessage(t, common.CollectionInspections, "", map[string]any{"userId": "u1", "registration": "AB12"}))
	require.NoError(t, err)
	id := wire.String(resp, wire.KeyID)
	require.NotEmpty(t, id)

	doc, err := store.Get(context.Background(), common.CollectionInspections, id)
	require.NoError(t, err)
	assert.Equal(t, "AB12", doc.String("registration"))

	_, err = s.AddDocument(ctx, dataMessage(t, common.CollectionInspections, "", map[string]any{"userId": "u2"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestSetDocument_UsersOwnership(t *testing.T) {
	s, _, store := newTestServer(t)
	seed(t, store, common.CollectionUsers, "u2", map[string]any{"name": "Other", "email": "other@b.io"})
	ctx := asUser("u1", "a@b.io")

	tests := []struct {
		name string
		id   string
		data map[string]any
		want codes.Code
	}{
		{"own document", "u1", map[string]any{"name": "Me", "email": "a@b.io"}, codes.OK},
		{"duplicate with own email", "stray", map[string]any{"name": "Me", "email": "a@b.io"}, codes.OK},
		{"someone else's document", "u2", map[string]any{"name": "Hijack", "email": "a@b.io"}, codes.PermissionDenied},
		{"new document with foreign email", "fresh", map[string]any{"email": "other@b.io"}, codes.PermissionDenied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.SetDocument(ctx, dataMessage(t, common.CollectionUsers, tc.id, tc.data))
			assert.Equal(t, tc.want, status.Code(err))
		})
	}

	doc, err := store.Get(context.Background(), common.CollectionUsers, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Other", doc.String("name"))
}

func TestUpdateDocument(t *testing.T) {
	s, _, store := newTestServer(t)
	seed(t, store, common.CollectionUsers, "u1", map[string]any{"name": "Old", "email": "a@b.io"})
	ctx := asUser("u1", "a@b.io")

	_, err := s.UpdateDocument(ctx, dataMessage(t, common.CollectionUsers, "u1", map[string]any{"name": "New"}))
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), common.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "New", doc.String("name"))
	assert.Equal(t, "a@b.io", doc.String("email"))

	_, err = s.UpdateDocument(asUser("missing", ""), dataMessage(t, common.CollectionUsers, "missing", map[string]any{"name": "X"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDeleteDocument(t *testing.T) {
	s, _, store := newTestServer(t)
	seed(t, store, common.CollectionInspections, "mine", map[string]any{"userId": "u1"})
	seed(t, store, common.CollectionInspections, "theirs", map[string]any{"userId": "u2"})
	ctx := asUser("u1", "a@b.io")

	_, err := s.DeleteDocument(ctx, wire.NewMessage(wire.KeyCollection, common.CollectionInspections, wire.KeyID, "mine"))
	require.NoError(t, err)

	_, err = s.DeleteDocument(ctx, wire.NewMessage(wire.KeyCollection, common.CollectionInspections, wire.KeyID, "theirs"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = store.Get(context.Background(), common.CollectionInspections, "mine")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = store.Get(context.Background(), common.CollectionInspections, "theirs")
	assert.NoError(t, err)
}

func TestUploadMedia(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := asUser("u1", "a@b.io")
	req := wire.NewMessage(wire.KeyName, "me.png", wire.KeyData, base64.StdEncoding.EncodeToString([]byte("png")))

	_, err := s.UploadMedia(ctx, req)
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	up := &fakeUploader{url: "https://media.example/me.png"}
	s.media = up

	resp, err := s.UploadMedia(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/me.png", wire.String(resp, wire.KeyURL))
	assert.Equal(t, "me.png", up.name)
	assert.Equal(t, []byte("png"), up.data)

	up.err = media.ErrTooLarge
	_, err = s.UploadMedia(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	up.err = errors.New("s3 down")
	_, err = s.UploadMedia(ctx, req)
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = s.UploadMedia(ctx, wire.NewMessage(wire.KeyName, "me.png", wire.KeyData, "!!"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrorUnauthorized, codes.Unauthenticated},
		{common.ErrInvalidToken, codes.Unauthenticated},
		{common.ErrRefreshTokenExpired, codes.Unauthenticated},
		{common.ErrResetTokenExpired, codes.FailedPrecondition},
		{fmt.Errorf("x: %w", common.ErrorAlreadyExists), codes.AlreadyExists},
		{common.ErrorNotFound, codes.NotFound},
		{fmt.Errorf("Users/x: %w", docstore.ErrNotFound), codes.NotFound},
		{fmt.Errorf("%w: bad", common.ErrorValidation), codes.InvalidArgument},
		{wire.ErrMalformed, codes.InvalidArgument},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, status.Code(toStatus(tc.err)), "%v", tc.err)
	}
}
