package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/wire"
)

// callTimeout bounds unary calls made without a deadline.
const callTimeout = 15 * time.Second

// GRPCClient's own Set and Subscribe are the docstore methods; the
// broadcaster's are reached through the embedded field.
type GRPCClient struct {
	*identity.Broadcaster

	endpointURL string
	conn        *grpc.ClientConn
	log         logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

var (
	_ docstore.Store    = (*GRPCClient)(nil)
	_ identity.Provider = (*GRPCClient)(nil)
)

// NewGRPCClient connects lazily to endpointURL. Extra dial options are
// appended after the defaults; tests use them to dial over bufconn.
func NewGRPCClient(endpointURL string, l logging.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{
		Broadcaster: identity.NewBroadcaster(),
		endpointURL: endpointURL,
		log:         l.With("module", "grpc_client"),
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *GRPCClient) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken, c.refreshToken = access, refresh
	c.mu.Unlock()
}

// tokenExpired reports whether err is the server asking for a fresh access
// token.
func tokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// refresh trades the refresh token for a new pair. Concurrent callers that
// saw the same expired token refresh only once.
func (c *GRPCClient) refresh(ctx context.Context, expired string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != expired {
		return nil
	}
	if c.refreshToken == "" {
		return ErrUnauthorized
	}

	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, wire.FullMethod(wire.MethodRefreshToken),
		wire.NewMessage(wire.KeyRefreshToken, c.refreshToken), out)
	if err != nil {
		return err
	}

	c.accessToken = wire.String(out, wire.KeyAccessToken)
	c.refreshToken = wire.String(out, wire.KeyRefreshToken)
	c.log.Debug(ctx, "access token refreshed")
	return nil
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if wire.Public(method) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, _ := c.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil || !tokenExpired(err) {
		return err
	}

	if rerr := c.refresh(ctx, access); rerr != nil {
		return err
	}

	// tokens refreshed, retrying with the new access token
	access, _ = c.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

func (c *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	access, _ := c.tokens()
	return streamer(withAccessToken(ctx, access), desc, cc, method, opts...)
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, wire.FullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.invoke(ctx, wire.MethodPing, &structpb.Struct{})
	if err != nil {
		return c.mapError(err)
	}
	if wire.String(resp, wire.KeyStatus) != wire.StatusOK {
		return ErrUnavailable
	}
	return nil
}

// ---- identity.Provider ----

func (c *GRPCClient) SignUp(ctx context.Context, email, secret string) (*identity.Identity, error) {
	return c.startSession(ctx, wire.MethodSignUp, email, secret)
}

func (c *GRPCClient) SignIn(ctx context.Context, email, secret string) (*identity.Identity, error) {
	return c.startSession(ctx, wire.MethodSignIn, email, secret)
}

func (c *GRPCClient) startSession(ctx context.Context, method, email, secret string) (*identity.Identity, error) {
	resp, err := c.invoke(ctx, method, wire.NewMessage(wire.KeyEmail, email, wire.KeySecret, secret))
	if err != nil {
		return nil, c.mapAuthError(err)
	}

	c.setTokens(wire.String(resp, wire.KeyAccessToken), wire.String(resp, wire.KeyRefreshToken))
	id := &identity.Identity{UserID: wire.String(resp, wire.KeyUserID), Email: wire.String(resp, wire.KeyEmail)}
	c.Broadcaster.Set(id)
	return id, nil
}

func (c *GRPCClient) SignOut(context.Context) error {
	c.setTokens("", "")
	c.Broadcaster.Set(nil)
	return nil
}

func (c *GRPCClient) OnIdentityChange(fn func(*identity.Identity)) func() {
	return c.Broadcaster.Subscribe(fn)
}

func (c *GRPCClient) Reauthenticate(ctx context.Context, id *identity.Identity, secret string) error {
	if id == nil || !identity.Same(c.Current(), id) {
		return identity.ErrNoSession
	}
	_, err := c.invoke(ctx, wire.MethodReauthenticate, wire.NewMessage(wire.KeySecret, secret))
	if err != nil {
		return c.mapAuthError(err)
	}
	return nil
}

func (c *GRPCClient) DeleteIdentity(ctx context.Context, id *identity.Identity) error {
	if id == nil || !identity.Same(c.Current(), id) {
		return identity.ErrNoSession
	}
	if _, err := c.invoke(ctx, wire.MethodDeleteAccount, &structpb.Struct{}); err != nil {
		return c.mapError(err)
	}
	c.setTokens("", "")
	c.Broadcaster.Set(nil)
	return nil
}

func (c *GRPCClient) SendPasswordReset(ctx context.Context, email string) error {
	_, err := c.invoke(ctx, wire.MethodRequestPasswordReset, wire.NewMessage(wire.KeyEmail, email))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return common.ErrorNotFound
		}
		return c.mapError(err)
	}
	return nil
}

// ---- services.Uploader ----

func (c *GRPCClient) Upload(ctx context.Context, name string, data []byte) (string, error) {
	req := wire.NewMessage(wire.KeyName, name, wire.KeyData, base64.StdEncoding.EncodeToString(data))
	resp, err := c.invoke(ctx, wire.MethodUploadMedia, req)
	if err != nil {
		return "", c.mapError(err)
	}
	return wire.String(resp, wire.KeyURL), nil
}

// ---- docstore.Store ----

func (c *GRPCClient) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	resp, err := c.invoke(ctx, wire.MethodGetDocument, wire.NewMessage(wire.KeyCollection, collection, wire.KeyID, id))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, c.mapError(err))
	}
	return wire.DecodeDocument(structpb.NewStructValue(resp))
}

func (c *GRPCClient) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	req, err := queryMessage(q)
	if err != nil {
		return nil, err
	}
	resp, err := c.invoke(ctx, wire.MethodQueryDocuments, req)
	if err != nil {
		return nil, c.mapError(err)
	}
	return wire.DecodeDocuments(resp.GetFields()[wire.KeyDocs])
}

func (c *GRPCClient) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	req, err := dataMessage(collection, "", data)
	if err != nil {
		return "", err
	}
	resp, err := c.invoke(ctx, wire.MethodAddDocument, req)
	if err != nil {
		return "", c.mapError(err)
	}
	return wire.String(resp, wire.KeyID), nil
}

func (c *GRPCClient) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return c.write(ctx, wire.MethodSetDocument, collection, id, data)
}

func (c *GRPCClient) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return c.write(ctx, wire.MethodUpdateDocument, collection, id, data)
}

func (c *GRPCClient) Delete(ctx context.Context, collection, id string) error {
	_, err := c.invoke(ctx, wire.MethodDeleteDocument, wire.NewMessage(wire.KeyCollection, collection, wire.KeyID, id))
	if err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, c.mapError(err))
	}
	return nil
}

func (c *GRPCClient) write(ctx context.Context, method, collection, id string, data map[string]any) error {
	req, err := dataMessage(collection, id, data)
	if err != nil {
		return err
	}
	if _, err := c.invoke(ctx, method, req); err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, c.mapError(err))
	}
	return nil
}

// Subscribe opens a Watch stream for q. The initial snapshot is read before
// Subscribe returns, so setup errors surface here; later snapshots and the
// first stream failure are delivered from a background goroutine.
func (c *GRPCClient) Subscribe(ctx context.Context, q docstore.Query, onSnapshot func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	stream, cancel, first, err := c.openWatch(ctx, q)
	if err != nil && tokenExpired(err) {
		access, _ := c.tokens()
		if rerr := c.refresh(ctx, access); rerr == nil {
			stream, cancel, first, err = c.openWatch(ctx, q)
		}
	}
	if err != nil {
		return nil, c.mapError(err)
	}

	var (
		once    sync.Once
		stopped = make(chan struct{})
	)
	unsubscribe := func() {
		once.Do(func() {
			close(stopped)
			cancel()
		})
	}

	onSnapshot(first)

	go func() {
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				select {
				case <-stopped:
				default:
					if onError != nil {
						onError(c.mapError(err))
					}
				}
				cancel()
				return
			}

			snap, err := wire.DecodeSnapshot(msg)
			if err != nil {
				c.log.Warn(context.Background(), "drop malformed snapshot", "collection", q.Collection, "error", err)
				continue
			}

			select {
			case <-stopped:
				return
			default:
				onSnapshot(snap)
			}
		}
	}()

	return unsubscribe, nil
}

// openWatch starts a Watch stream and reads its initial snapshot. The stream
// outlives ctx; the returned cancel ends it.
func (c *GRPCClient) openWatch(ctx context.Context, q docstore.Query) (grpc.ClientStream, context.CancelFunc, docstore.Snapshot, error) {
	req, err := queryMessage(q)
	if err != nil {
		return nil, nil, docstore.Snapshot{}, err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	fail := func(err error) (grpc.ClientStream, context.CancelFunc, docstore.Snapshot, error) {
		cancel()
		return nil, nil, docstore.Snapshot{}, err
	}

	stream, err := c.conn.NewStream(streamCtx, &wire.WatchStreamDesc, wire.FullMethod(wire.MethodWatch))
	if err != nil {
		return fail(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return fail(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fail(err)
	}

	// ctx still bounds the wait for the first snapshot.
	stop := context.AfterFunc(ctx, cancel)
	msg := new(structpb.Struct)
	err = stream.RecvMsg(msg)
	if !stop() && err == nil {
		return fail(ctx.Err())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(ctxErr)
		}
		return fail(err)
	}

	first, err := wire.DecodeSnapshot(msg)
	if err != nil {
		return fail(err)
	}
	return stream, cancel, first, nil
}

func queryMessage(q docstore.Query) (*structpb.Struct, error) {
	v, err := wire.EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{wire.KeyQuery: v}}, nil
}

func dataMessage(collection, id string, data map[string]any) (*structpb.Struct, error) {
	enc, err := wire.EncodeData(data)
	if err != nil {
		return nil, err
	}
	msg := wire.NewMessage(wire.KeyCollection, collection)
	if id != "" {
		msg.Fields[wire.KeyID] = structpb.NewStringValue(id)
	}
	msg.Fields[wire.KeyData] = structpb.NewStructValue(enc)
	return msg, nil
}

// mapAuthError maps failures of the sign-in style RPCs, where Unauthenticated
// means the credentials were wrong.
func (c *GRPCClient) mapAuthError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated:
		return identity.ErrInvalidCredentials
	case codes.AlreadyExists:
		return identity.ErrEmailInUse
	default:
		return c.mapError(err)
	}
}

func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return docstore.ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
