package grpc

import (
	"context"
	"encoding/base64"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/accounts"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/auth"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/media"
	"github.com/dmitrijs2005/vehiclecheck/internal/wire"
)

func (s *Server) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return wire.NewMessage(wire.KeyStatus, wire.StatusOK), nil
}

func (s *Server) SignUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := wire.String(req, wire.KeyEmail)

	sess, err := s.accounts.SignUp(ctx, email, wire.String(req, wire.KeySecret))
	if err != nil {
		s.logger.Info(ctx, "sign up rejected", "email", email, "error", err)
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "signed up", "user_id", sess.UserID)
	return sessionMessage(sess), nil
}

func (s *Server) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.accounts.SignIn(ctx, wire.String(req, wire.KeyEmail), wire.String(req, wire.KeySecret))
	if err != nil {
		return nil, toStatus(err)
	}
	return sessionMessage(sess), nil
}

func (s *Server) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.accounts.RefreshToken(ctx, wire.String(req, wire.KeyRefreshToken))
	if err != nil {
		return nil, toStatus(err)
	}
	return sessionMessage(sess), nil
}

func (s *Server) Reauthenticate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Reauthenticate(ctx, claims.UserID, wire.String(req, wire.KeySecret)); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Delete(ctx, claims.UserID); err != nil {
		s.logger.Error(ctx, "delete account", "user_id", claims.UserID, "error", err)
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.accounts.RequestPasswordReset(ctx, wire.String(req, wire.KeyEmail)); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.accounts.ResetPassword(ctx, wire.String(req, wire.KeyToken), wire.String(req, wire.KeySecret)); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coll, id, err := target(req)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.Get(ctx, coll, id)
	if err != nil {
		return nil, toStatus(err)
	}

	v, err := wire.EncodeDocument(doc)
	if err != nil {
		return nil, toStatus(err)
	}
	return v.GetStructValue(), nil
}

func (s *Server) QueryDocuments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := wire.DecodeQuery(req.GetFields()[wire.KeyQuery])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	docs, err := s.docs.Query(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}

	v, err := wire.EncodeDocuments(docs)
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{wire.KeyDocs: v}}, nil
}

func (s *Server) AddDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coll := wire.String(req, wire.KeyCollection)
	if coll == "" {
		return nil, status.Error(codes.InvalidArgument, "collection is required")
	}
	data := wire.DecodeData(req.GetFields()[wire.KeyData].GetStructValue())

	claims, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if !owns(claims, coll, "", data) {
		return nil, s.denied(ctx, claims, coll, "")
	}

	id, err := s.docs.Add(ctx, coll, data)
	if err != nil {
		return nil, toStatus(err)
	}
	return wire.NewMessage(wire.KeyID, id), nil
}

func (s *Server) SetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coll, id, err := target(req)
	if err != nil {
		return nil, err
	}
	data := wire.DecodeData(req.GetFields()[wire.KeyData].GetStructValue())

	if err := s.authorizeWrite(ctx, coll, id, data, false); err != nil {
		return nil, err
	}
	if err := s.docs.Set(ctx, coll, id, data); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) UpdateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coll, id, err := target(req)
	if err != nil {
		return nil, err
	}
	data := wire.DecodeData(req.GetFields()[wire.KeyData].GetStructValue())

	if err := s.authorizeWrite(ctx, coll, id, data, true); err != nil {
		return nil, err
	}
	if err := s.docs.Update(ctx, coll, id, data); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) DeleteDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coll, id, err := target(req)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeWrite(ctx, coll, id, nil, false); err != nil {
		return nil, err
	}
	if err := s.docs.Delete(ctx, coll, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) UploadMedia(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.media == nil {
		return nil, status.Error(codes.Unimplemented, "media storage is not configured")
	}
	if _, err := caller(ctx); err != nil {
		return nil, err
	}

	name := wire.String(req, wire.KeyName)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	data, err := base64.StdEncoding.DecodeString(wire.String(req, wire.KeyData))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "data must be base64")
	}

	url, err := s.media.Upload(ctx, name, data)
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error(ctx, "upload media", "name", name, "error", err)
		return nil, status.Error(codes.Internal, "upload failed")
	}
	return wire.NewMessage(wire.KeyURL, url), nil
}

// Watch keeps one query live and streams a snapshot message per change
// until the client cancels or the server shuts down.
func (s *Server) Watch(stream grpc.ServerStream) error {
	ctx := stream.Context()

	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	q, err := wire.DecodeQuery(in.GetFields()[wire.KeyQuery])
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	snaps := make(chan docstore.Snapshot)
	errs := make(chan error, 1)

	unsubscribe, err := s.docs.Subscribe(ctx, q,
		func(snap docstore.Snapshot) {
			select {
			case snaps <- snap:
			case <-ctx.Done():
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	if err != nil {
		return toStatus(err)
	}
	defer unsubscribe()

	s.metrics.OpenWatches.Inc()
	defer s.metrics.OpenWatches.Dec()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.quit:
			return status.Error(codes.Unavailable, "server shutting down")
		case err := <-errs:
			s.logger.Warn(ctx, "watch failed", "collection", q.Collection, "error", err)
			return toStatus(err)
		case snap := <-snaps:
			msg, err := wire.EncodeSnapshot(snap)
			if err != nil {
				return toStatus(err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
			s.metrics.WatchSnaps.Inc()
		}
	}
}

// authorizeWrite checks the caller owns both the stored document and the
// data being written. mustExist reports a missing document as NotFound.
func (s *Server) authorizeWrite(ctx context.Context, coll, id string, data map[string]any, mustExist bool) error {
	claims, err := caller(ctx)
	if err != nil {
		return err
	}

	existing, err := s.docs.Get(ctx, coll, id)
	switch {
	case err == nil:
		if !owns(claims, coll, id, existing.Data) {
			return s.denied(ctx, claims, coll, id)
		}
	case errors.Is(err, docstore.ErrNotFound):
		if mustExist {
			return toStatus(err)
		}
	default:
		return toStatus(err)
	}

	if data != nil && !owns(claims, coll, id, data) {
		return s.denied(ctx, claims, coll, id)
	}
	return nil
}

func (s *Server) denied(ctx context.Context, claims *auth.Claims, coll, id string) error {
	s.metrics.PolicyDenied.WithLabelValues(coll).Inc()
	s.logger.Warn(ctx, "document write denied", "user_id", claims.UserID, "collection", coll, "id", id)
	return status.Error(codes.PermissionDenied, "not the owner of this document")
}

// owns reports whether the caller may write a document. Documents naming a
// userId belong to that user. Users documents belong to the account they are
// keyed by or to the email they carry, which also covers stray duplicates.
func owns(claims *auth.Claims, coll, id string, data map[string]any) bool {
	if uid, ok := data[wire.KeyUserID].(string); ok {
		return uid == claims.UserID
	}
	if coll == common.CollectionUsers {
		if id == claims.UserID {
			return true
		}
		email, _ := data[wire.KeyEmail].(string)
		return email != "" && email == claims.Email
	}
	return true
}

func caller(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return claims, nil
}

func target(req *structpb.Struct) (string, string, error) {
	coll, id := wire.String(req, wire.KeyCollection), wire.String(req, wire.KeyID)
	if coll == "" || id == "" {
		return "", "", status.Error(codes.InvalidArgument, "collection and id are required")
	}
	return coll, id, nil
}

func sessionMessage(sess *accounts.Session) *structpb.Struct {
	return wire.NewMessage(
		wire.KeyUserID, sess.UserID,
		wire.KeyEmail, sess.Email,
		wire.KeyAccessToken, sess.AccessToken,
		wire.KeyRefreshToken, sess.RefreshToken,
	)
}

// toStatus maps service and store errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrResetTokenExpired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, docstore.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorValidation), errors.Is(err, wire.ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
