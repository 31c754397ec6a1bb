package hostsim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/codec"
	"github.com/rakunlabs/wasmsvc/internal/config"
	"github.com/rakunlabs/wasmsvc/internal/crypto"
)

// Server is the host simulator's HTTP surface: one guest deployment's
// manifest, call, and identity-issuance endpoints (§6), built on the
// same ada middleware chain the teacher's gateway uses.
type Server struct {
	config config.Server
	server *ada.Server
	guest  *Guest
}

// New builds the simulator's HTTP server for guest, following the
// teacher's internal/server.New middleware chain (recover, server
// header, CORS, request id, access log, telemetry, optional forward
// auth) generalized from the LLM gateway's routes to the guest's
// manifest/call/identity surface.
func New(cfg config.Server, guest *Guest) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{config: cfg, server: mux, guest: guest}

	base := mux.Group(cfg.BasePath)
	if cfg.ForwardAuth != nil {
		base.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	api := base.Group("/v1")
	api.GET("/manifest", s.ManifestAPI)
	api.POST("/identities", s.CreateIdentityAPI)
	api.POST("/call/*", s.CallAPI)

	return s
}

func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}

func (s *Server) ManifestAPI(w http.ResponseWriter, r *http.Request) {
	raw, err := s.guest.Manifest.CanonicalJSON()
	if err != nil {
		httpResponse(w, fmt.Sprintf("failed to render manifest: %v", err), http.StatusInternalServerError)
		return
	}
	httpResponseJSONByte(w, raw, http.StatusOK)
}

type identityResponse struct {
	PublicKey string `json:"public_key"`
}

func (s *Server) CreateIdentityAPI(w http.ResponseWriter, r *http.Request) {
	id, err := s.guest.IssueIdentity()
	if err != nil {
		slog.Error("hostsim: issue executor identity failed", "error", err)
		httpResponse(w, fmt.Sprintf("failed to issue identity: %v", err), http.StatusInternalServerError)
		return
	}
	httpResponseJSON(w, identityResponse{PublicKey: publicKeyHex(id.Public)}, http.StatusOK)
}

// CallAPI handles POST {base}/v1/call/{method}: the request body is a
// JSON value tree matching the method's declared parameters (a single
// value for one parameter, an array for several), encoded to the
// binary wire format per the manifest before being handed to the
// dispatcher. Non-view methods require X-Executor-Public-Key and
// X-Signature headers (hex-encoded) so the simulator can enforce §6's
// signed-mutating-call rule the same way a production host would.
func (s *Server) CallAPI(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("*")
	if method == "" {
		httpResponse(w, "method name is required", http.StatusBadRequest)
		return
	}

	m, ok := s.guest.Manifest.Method(method)
	if !ok {
		httpResponse(w, fmt.Sprintf("no such method: %q", method), http.StatusNotFound)
		return
	}

	var body json.RawMessage
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	argBytes, err := encodeArgs(s.guest.Manifest, m, body)
	if err != nil {
		httpResponse(w, fmt.Sprintf("failed to encode arguments: %v", err), http.StatusBadRequest)
		return
	}

	executor, err := s.authorizeCall(r, m, argBytes)
	if err != nil {
		httpResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	result, err := s.guest.DispatchAs(executor, method, argBytes)
	if err != nil {
		httpResponse(w, fmt.Sprintf("call failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpResponseJSONByte(w, result, http.StatusOK)
}

// authorizeCall resolves the acting executor's public key from the
// X-Executor-Public-Key header and, for a non-view method, verifies
// X-Signature over argBytes (§6: guest collection operations are keyed
// by the signing executor; unsigned mutating calls are refused).
func (s *Server) authorizeCall(r *http.Request, m abi.Method, argBytes []byte) (ed25519.PublicKey, error) {
	pubHex := r.Header.Get("X-Executor-Public-Key")
	if pubHex == "" {
		if m.View {
			return nil, nil
		}
		return nil, fmt.Errorf("X-Executor-Public-Key header is required")
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid executor public key")
	}

	if m.View {
		return ed25519.PublicKey(pub), nil
	}

	sigHex := r.Header.Get("X-Signature")
	if sigHex == "" {
		return nil, fmt.Errorf("X-Signature header is required for mutating calls")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding")
	}
	if !crypto.VerifyCallSignature(ed25519.PublicKey(pub), argBytes, sig) {
		return nil, fmt.Errorf("signature verification failed")
	}
	return ed25519.PublicKey(pub), nil
}

// encodeArgs turns the JSON request body into the binary wire format
// the dispatcher expects, per method's declared parameter shape: zero
// params encodes nothing, one param decodes body directly as that
// type, several params decode body as a JSON array matched
// positionally (mirroring dispatch.decodeArgs's synthetic-record
// concatenation in reverse).
func encodeArgs(m *abi.Manifest, method abi.Method, body json.RawMessage) ([]byte, error) {
	switch len(method.Params) {
	case 0:
		return nil, nil
	case 1:
		value, err := jsonToValue(m, method.Params[0].Type, body)
		if err != nil {
			return nil, err
		}
		return codec.Encode(m, method.Params[0].Type, value)
	default:
		var values []json.RawMessage
		if err := json.Unmarshal(body, &values); err != nil {
			return nil, fmt.Errorf("expected a JSON array of %d arguments: %w", len(method.Params), err)
		}
		if len(values) != len(method.Params) {
			return nil, fmt.Errorf("expected %d arguments, got %d", len(method.Params), len(values))
		}
		enc := codec.NewEncoder()
		for i, field := range method.Params {
			value, err := jsonToValue(m, field.Type, values[i])
			if err != nil {
				return nil, err
			}
			if err := enc.Encode(m, field.Type, value); err != nil {
				return nil, err
			}
		}
		return enc.Bytes(), nil
	}
}

// jsonToValue decodes raw against ref, normalizing JSON numbers to the
// shape codec.Encode's scalar coercions expect: encoding/json always
// decodes a bare number into float64, but codec's integer scalars only
// accept Go integer types or a decimal string (the wide-integer wire
// encoding, §4.5), so an integer-typed argument here would otherwise
// fail encoding with a spurious type mismatch.
func jsonToValue(m *abi.Manifest, ref abi.TypeRef, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON argument: %w", err)
	}
	return normalizeJSONForRef(m, ref, v)
}

// normalizeJSONForRef walks a decoded JSON value alongside its declared
// ABI type, coercing json.Number leaves into a decimal string for
// integer scalars (what toUint/toInt's decimal-string path expects) or
// a float64 for f32/f64 (what toFloat expects) — recursing through
// option/list/set/map/record shapes the same way codec's own decoder
// walks a TypeRef.
func normalizeJSONForRef(m *abi.Manifest, ref abi.TypeRef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch ref.Kind {
	case abi.RefScalar:
		return normalizeJSONScalar(ref.Scalar, v)
	case abi.RefOption:
		return normalizeJSONForRef(m, *ref.Elem, v)
	case abi.RefList, abi.RefSet:
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a JSON array, got %T", v)
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			nv, err := normalizeJSONForRef(m, *ref.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case abi.RefMap:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a JSON object for a map argument, got %T", v)
		}
		out := make(map[string]any, len(obj))
		for k, val := range obj {
			nv, err := normalizeJSONForRef(m, *ref.Value, val)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case abi.RefNamed:
		td, err := m.Resolve(ref.Name)
		if err != nil {
			return nil, err
		}
		switch td.Kind {
		case abi.TypeDefRecord:
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected a JSON object for %q, got %T", ref.Name, v)
			}
			out := make(map[string]any, len(obj))
			for _, f := range td.Fields {
				fv, present := obj[f.Name]
				if !present {
					continue
				}
				nv, err := normalizeJSONForRef(m, f.Type, fv)
				if err != nil {
					return nil, err
				}
				out[f.Name] = nv
			}
			return out, nil
		case abi.TypeDefAlias:
			return normalizeJSONForRef(m, *td.Alias, v)
		default:
			// Variants carry a dynamic payload type picked by tag, not
			// statically known here; pass the decoded value through
			// untouched rather than guess.
			return v, nil
		}
	default:
		return v, nil
	}
}

func normalizeJSONScalar(s abi.Scalar, v any) (any, error) {
	num, isNumber := v.(json.Number)
	if !isNumber {
		return v, nil
	}
	switch s {
	case abi.ScalarU8, abi.ScalarU16, abi.ScalarU32, abi.ScalarU64, abi.ScalarU128,
		abi.ScalarI8, abi.ScalarI16, abi.ScalarI32, abi.ScalarI64, abi.ScalarI128:
		return num.String(), nil
	case abi.ScalarF32, abi.ScalarF64:
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid numeric argument %q: %w", num, err)
		}
		return f, nil
	default:
		return v, nil
	}
}
