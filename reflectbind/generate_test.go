package reflectbind

import (
	"errors"
	"testing"

	"github.com/chazu/mirror/accessor"
)

func generateMethod(tb testing.TB, r *Registry, name string) accessor.InvokeHandle {
	tb.Helper()
	d, err := r.MethodDescriptor("account", name)
	if err != nil {
		tb.Fatalf("MethodDescriptor(%s): %v", name, err)
	}
	h, err := r.GenerateCallable(d)
	if err != nil {
		tb.Fatalf("GenerateCallable(%s): %v", name, err)
	}
	return h
}

func TestGeneratedHandleArities(t *testing.T) {
	r := registerAccount(t)
	acct := &account{Owner: "ada", Balance: 10}

	// Nullary.
	h0 := generateMethod(t, r, "OwnerName")
	res, err := h0.Call(acct, nil)
	if err != nil {
		t.Fatalf("nullary: %v", err)
	}
	if res[0] != "ada" {
		t.Errorf("nullary result = %v, want ada", res[0])
	}

	// Unary, with widening.
	h1 := generateMethod(t, r, "Deposit")
	res, err = h1.Call(acct, []any{int16(5)})
	if err != nil {
		t.Fatalf("unary: %v", err)
	}
	if res[0] != int64(15) {
		t.Errorf("unary result = %v, want 15", res[0])
	}

	// Binary.
	h2 := generateMethod(t, r, "Describe")
	res, err = h2.Call(acct, []any{"a: ", false})
	if err != nil {
		t.Fatalf("binary: %v", err)
	}
	if res[0] != "a: ada" {
		t.Errorf("binary result = %v, want a: ada", res[0])
	}

	// Three and up share the generic shape.
	h3 := generateMethod(t, r, "Transfer")
	other := &account{}
	res, err = h3.Call(acct, []any{other, int8(5), "rent"})
	if err != nil {
		t.Fatalf("ternary: %v", err)
	}
	if res[0] != int64(10) {
		t.Errorf("ternary result = %v, want 10", res[0])
	}
	if other.Balance != 5 {
		t.Errorf("transfer target balance = %d, want 5", other.Balance)
	}
}

func TestGeneratedHandleValidatesLikeInterpretive(t *testing.T) {
	r := registerAccount(t)
	h := generateMethod(t, r, "Deposit")

	// Nil receiver.
	if _, err := h.Call(nil, []any{int64(1)}); !errors.Is(err, accessor.ErrNilReceiver) {
		t.Errorf("nil receiver = %v, want ErrNilReceiver", err)
	}
	// Wrong receiver type.
	if _, err := h.Call("acct", []any{int64(1)}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("wrong receiver = %v, want type mismatch", err)
	}
	// Arity.
	if _, err := h.Call(&account{}, nil); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("missing argument = %v, want type mismatch", err)
	}
	// Narrowing.
	if _, err := h.Call(&account{}, []any{float64(1)}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("narrowing argument = %v, want type mismatch", err)
	}
	// Bool isolation.
	if _, err := h.Call(&account{}, []any{true}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("bool argument = %v, want type mismatch", err)
	}
	// Nil for a primitive parameter.
	if _, err := h.Call(&account{}, []any{nil}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("nil argument = %v, want type mismatch", err)
	}
}

func TestGeneratedHandleRefParameters(t *testing.T) {
	r := registerAccount(t)
	h := generateMethod(t, r, "Transfer")
	acct := &account{Balance: 10}

	// Nil is legal for the nillable pointer parameter.
	if _, err := h.Call(acct, []any{nil, int64(0), "memo"}); err != nil {
		t.Errorf("nil for pointer parameter: %v", err)
	}
	// But a mistyped ref is not.
	if _, err := h.Call(acct, []any{"other", int64(1), "memo"}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("mistyped ref = %v, want type mismatch", err)
	}
	// And nil for the string parameter is not.
	if _, err := h.Call(acct, []any{&account{}, int64(1), nil}); !errors.Is(err, accessor.ErrTypeMismatch) {
		t.Errorf("nil for string = %v, want type mismatch", err)
	}
}

func TestGeneratedStaticIgnoresReceiver(t *testing.T) {
	r := registerAccount(t)
	d, err := r.StaticDescriptor("account", "Version")
	if err != nil {
		t.Fatalf("StaticDescriptor: %v", err)
	}
	h, err := r.GenerateCallable(d)
	if err != nil {
		t.Fatalf("GenerateCallable: %v", err)
	}

	if res, err := h.Call(nil, nil); err != nil || res[0] != "1.0" {
		t.Errorf("Call(nil) = %v, %v, want 1.0", res, err)
	}
	if res, err := h.Call("anything", nil); err != nil || res[0] != "1.0" {
		t.Errorf("Call(unrelated) = %v, %v, want 1.0", res, err)
	}
}

func TestGeneratedConstructor(t *testing.T) {
	r := registerAccount(t)
	d, err := r.ConstructorDescriptor("account", "New")
	if err != nil {
		t.Fatalf("ConstructorDescriptor: %v", err)
	}
	h, err := r.GenerateCallable(d)
	if err != nil {
		t.Fatalf("GenerateCallable: %v", err)
	}

	res, err := h.Call(nil, []any{"lin", int32(7)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	made := res[0].(*account)
	if made.Owner != "lin" || made.Balance != 7 {
		t.Errorf("constructed %+v", made)
	}
}

func TestGeneratedPanicBecomesTargetError(t *testing.T) {
	r := registerAccount(t)
	h := generateMethod(t, r, "Panics")

	_, err := h.Call(&account{}, nil)
	var te *accessor.TargetError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TargetError", err)
	}
}

func TestGenerateBoundRechecksGate(t *testing.T) {
	gate := func(c *accessor.Caller) error {
		if c.Name() != "alice" {
			return errors.New("refused")
		}
		return nil
	}
	r := registerAccount(t, WithGate("Rename", gate))
	d, err := r.MethodDescriptor("account", "Rename")
	if err != nil {
		t.Fatalf("MethodDescriptor: %v", err)
	}

	h, err := r.GenerateBound(d, accessor.NewCaller("alice"))
	if err != nil {
		t.Fatalf("GenerateBound(alice): %v", err)
	}
	if res, err := h.Call(&account{}, []any{"next"}); err != nil || res[0] != "next" {
		t.Errorf("bound call = %v, %v, want next", res, err)
	}

	if _, err := r.GenerateBound(d, accessor.NewCaller("bob")); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("GenerateBound(bob) = %v, want resolution error", err)
	}
	if _, err := r.GenerateBound(d, nil); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("GenerateBound(nil) = %v, want resolution error", err)
	}
}

func TestGeneratedHandleLiveness(t *testing.T) {
	r := registerAccount(t)
	h := generateMethod(t, r, "Deposit")

	live, ok := h.(accessor.Liveness)
	if !ok {
		t.Fatal("generated handle should report liveness")
	}
	if !live.Alive() {
		t.Fatal("fresh handle should be alive")
	}
	r.Unregister("account")
	if live.Alive() {
		t.Error("handle should die with its registration")
	}
}
