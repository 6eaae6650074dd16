package reflectbind

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/chazu/mirror/accessor"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// account is the pointer-registered test type.
type account struct {
	Balance int64
	Owner   string
	Rate    float32
	ID      int32 `mirror:"readonly"`
	pin     int
}

func (a *account) Deposit(amount int64) int64 {
	a.Balance += amount
	return a.Balance
}

func (a *account) OwnerName() string {
	return a.Owner
}

func (a *account) Describe(prefix string, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%s%s (%d, pin %d)", prefix, a.Owner, a.Balance, a.pin)
	}
	return prefix + a.Owner
}

func (a *account) Transfer(to *account, amount int64, memo string) int64 {
	a.Balance -= amount
	if to != nil {
		to.Balance += amount
	}
	return a.Balance
}

func (a *account) Close() error {
	if a.Balance != 0 {
		return fmt.Errorf("balance %d not settled", a.Balance)
	}
	return nil
}

func (a *account) Panics() {
	panic("kaboom")
}

func (a *account) ReadSecret() string {
	return "s3cr3t"
}

func (a *account) ReadSecretAs(c *accessor.Caller) string {
	return "s3cr3t:" + c.Name()
}

func (a *account) Rename(name string) string {
	a.Owner = name
	return a.Owner
}

// RenameAs is not a conforming caller-aware variant of Rename: the
// trailing parameters differ.
func (a *account) RenameAs(c *accessor.Caller, name string, upper bool) string {
	return name
}

func (a *account) SumAll(xs ...int64) int64 {
	var t int64
	for _, x := range xs {
		t += x
	}
	return t
}

// point is the value-registered test type.
type point struct {
	X int32
	Y int32
}

func (p point) Norm() float64 {
	return float64(p.X)*float64(p.X) + float64(p.Y)*float64(p.Y)
}

var accountLimit = int64(1000)

func newAccount(owner string, balance int64) *account {
	return &account{Owner: owner, Balance: balance}
}

func registerAccount(tb testing.TB, extra ...Option) *Registry {
	tb.Helper()
	r := New()
	opts := append([]Option{
		WithStatic("Version", func() string { return "1.0" }),
		WithConstructor("New", newAccount),
		WithStaticVar("Limit", &accountLimit),
		WithReadOnly("Rate"),
	}, extra...)
	if err := r.Register("account", &account{}, opts...); err != nil {
		tb.Fatalf("Register(account): %v", err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegisterValidation(t *testing.T) {
	r := New()

	if err := r.Register("", &account{}); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("empty name = %v, want resolution error", err)
	}
	if err := r.Register("x", nil); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("nil sample = %v, want resolution error", err)
	}
	if err := r.Register("x", &account{}, WithStatic("Bad", 42)); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("non-func static = %v, want resolution error", err)
	}
	if err := r.Register("x", &account{}, WithStatic("Bad", func(xs ...int) {})); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("variadic static = %v, want resolution error", err)
	}
	if err := r.Register("x", &account{}, WithStaticVar("Bad", 42)); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("non-pointer static var = %v, want resolution error", err)
	}
	if err := r.Register("x", &account{}, WithStaticVar("Bad", (*int64)(nil))); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("nil pointer static var = %v, want resolution error", err)
	}
}

func TestRegisterAndCount(t *testing.T) {
	r := registerAccount(t)
	if err := r.Register("point", point{}); err != nil {
		t.Fatalf("Register(point): %v", err)
	}
	if got := r.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestUnregister(t *testing.T) {
	r := registerAccount(t)
	if !r.Unregister("account") {
		t.Fatal("Unregister should report the name was present")
	}
	if r.Unregister("account") {
		t.Error("second Unregister should report absence")
	}
	if _, err := r.MethodDescriptor("account", "Deposit"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("lookup after Unregister = %v, want resolution error", err)
	}
}

func TestReregisterMarksOldHandlesDead(t *testing.T) {
	r := registerAccount(t)
	d, err := r.MethodDescriptor("account", "Deposit")
	if err != nil {
		t.Fatalf("MethodDescriptor: %v", err)
	}
	h, err := r.ResolveCallable(d)
	if err != nil {
		t.Fatalf("ResolveCallable: %v", err)
	}
	live, ok := h.(accessor.Liveness)
	if !ok {
		t.Fatal("resolved handle should report liveness")
	}
	if !live.Alive() {
		t.Fatal("fresh handle should be alive")
	}

	if err := r.Register("account", &account{}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if live.Alive() {
		t.Error("handle from the replaced registration should be dead")
	}
}

// ---------------------------------------------------------------------------
// Descriptor discovery
// ---------------------------------------------------------------------------

func TestMethodDescriptor(t *testing.T) {
	r := registerAccount(t)

	d, err := r.MethodDescriptor("account", "Deposit")
	if err != nil {
		t.Fatalf("MethodDescriptor: %v", err)
	}
	if d.Kind() != accessor.KindMethod || d.IsStatic() {
		t.Errorf("Deposit should be an instance method, got %s static=%v", d.Kind(), d.IsStatic())
	}
	if d.NumParams() != 1 || accessor.CodeOf(d.Param(0)) != accessor.Int64 {
		t.Errorf("Deposit params = %d of %v", d.NumParams(), d.Params())
	}
	if d.NumResults() != 1 {
		t.Errorf("Deposit results = %d, want 1", d.NumResults())
	}
	if d.IsCallerSensitive() {
		t.Error("Deposit has no gate and must not be sensitive")
	}

	if _, err := r.MethodDescriptor("account", "NoSuch"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("missing method = %v, want resolution error", err)
	}
	if _, err := r.MethodDescriptor("ghost", "Deposit"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("missing type = %v, want resolution error", err)
	}
	if _, err := r.MethodDescriptor("account", "SumAll"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("variadic method = %v, want resolution error", err)
	}
}

func TestMethodDescriptorSensitivity(t *testing.T) {
	r := registerAccount(t, WithGate("ReadSecret", nil))

	d, err := r.MethodDescriptor("account", "ReadSecret")
	if err != nil {
		t.Fatalf("MethodDescriptor: %v", err)
	}
	if !d.IsCallerSensitive() {
		t.Error("gated member should be caller-sensitive")
	}
}

func TestStaticAndConstructorDescriptors(t *testing.T) {
	r := registerAccount(t)

	ds, err := r.StaticDescriptor("account", "Version")
	if err != nil {
		t.Fatalf("StaticDescriptor: %v", err)
	}
	if !ds.IsStatic() || ds.NumParams() != 0 || ds.NumResults() != 1 {
		t.Errorf("Version descriptor = %s", ds)
	}

	dc, err := r.ConstructorDescriptor("account", "New")
	if err != nil {
		t.Fatalf("ConstructorDescriptor: %v", err)
	}
	if dc.Kind() != accessor.KindConstructor || !dc.IsStatic() {
		t.Errorf("New should be a static constructor, got %s", dc)
	}
	if dc.NumParams() != 2 {
		t.Errorf("New params = %d, want 2", dc.NumParams())
	}

	if _, err := r.StaticDescriptor("account", "NoSuch"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("missing static = %v, want resolution error", err)
	}
	if _, err := r.ConstructorDescriptor("account", "NoSuch"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("missing constructor = %v, want resolution error", err)
	}
}

func TestFieldDescriptor(t *testing.T) {
	r := registerAccount(t)

	d, err := r.FieldDescriptor("account", "Balance")
	if err != nil {
		t.Fatalf("FieldDescriptor: %v", err)
	}
	if d.Kind() != accessor.KindField || d.FieldCode() != accessor.Int64 {
		t.Errorf("Balance descriptor = %s, code %v", d, d.FieldCode())
	}
	if d.IsReadOnly() {
		t.Error("Balance should be writable")
	}

	// Read-only from the struct tag.
	id, err := r.FieldDescriptor("account", "ID")
	if err != nil {
		t.Fatalf("FieldDescriptor(ID): %v", err)
	}
	if !id.IsReadOnly() {
		t.Error("ID carries the readonly tag")
	}

	// Read-only from the registration option.
	rate, err := r.FieldDescriptor("account", "Rate")
	if err != nil {
		t.Fatalf("FieldDescriptor(Rate): %v", err)
	}
	if !rate.IsReadOnly() {
		t.Error("Rate was registered read-only")
	}

	if _, err := r.FieldDescriptor("account", "pin"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("unexported field = %v, want resolution error", err)
	}
	if _, err := r.FieldDescriptor("account", "NoSuch"); !errors.Is(err, accessor.ErrResolution) {
		t.Errorf("missing field = %v, want resolution error", err)
	}
}

func TestStaticFieldDescriptor(t *testing.T) {
	r := registerAccount(t)

	d, err := r.StaticFieldDescriptor("account", "Limit")
	if err != nil {
		t.Fatalf("StaticFieldDescriptor: %v", err)
	}
	if !d.IsStatic() || d.FieldCode() != accessor.Int64 {
		t.Errorf("Limit descriptor = %s, code %v", d, d.FieldCode())
	}
}

func TestDescriptorsEnumeration(t *testing.T) {
	r := registerAccount(t, WithGate("ReadSecret", nil))

	all, err := r.Descriptors("account")
	if err != nil {
		t.Fatalf("Descriptors: %v", err)
	}

	byKey := make(map[string]*accessor.Descriptor, len(all))
	for i, d := range all {
		byKey[d.Key()] = d
		if i > 0 && all[i-1].Key() >= d.Key() {
			t.Errorf("descriptors not sorted: %s before %s", all[i-1].Key(), d.Key())
		}
	}

	for _, want := range []string{
		"method:reflectbind.account.Deposit",
		"method:reflectbind.account.ReadSecret",
		"method:reflectbind.account.Version",
		"constructor:reflectbind.account.New",
		"field:reflectbind.account.Balance",
		"field:reflectbind.account.ID",
		"field:reflectbind.account.Limit",
	} {
		if byKey[want] == nil {
			t.Errorf("enumeration is missing %s", want)
		}
	}

	// Variants, variadics, and unexported fields stay out.
	for _, not := range []string{
		"method:reflectbind.account.ReadSecretAs",
		"method:reflectbind.account.SumAll",
		"field:reflectbind.account.pin",
	} {
		if byKey[not] != nil {
			t.Errorf("enumeration should not contain %s", not)
		}
	}
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

func TestInitRunsOnceBeforeFirstUse(t *testing.T) {
	var inits atomic.Int32
	r := registerAccount(t, WithInit(func() error {
		inits.Add(1)
		return nil
	}))

	d, err := r.MethodDescriptor("account", "Deposit")
	if err != nil {
		t.Fatalf("MethodDescriptor: %v", err)
	}
	h, err := r.ResolveCallable(d)
	if err != nil {
		t.Fatalf("ResolveCallable: %v", err)
	}
	if got := inits.Load(); got != 0 {
		t.Fatalf("initializer ran %d times before first call", got)
	}

	for i := 0; i < 5; i++ {
		if _, err := h.Call(&account{}, []any{int64(1)}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := inits.Load(); got != 1 {
		t.Errorf("initializer ran %d times, want 1", got)
	}
}

func TestInitFailureIsSticky(t *testing.T) {
	var inits atomic.Int32
	cause := errors.New("schema migration failed")
	r := registerAccount(t, WithInit(func() error {
		inits.Add(1)
		return cause
	}))

	d, err := r.FieldDescriptor("account", "Balance")
	if err != nil {
		t.Fatalf("FieldDescriptor: %v", err)
	}
	h, err := r.ResolveField(d)
	if err != nil {
		t.Fatalf("ResolveField: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := h.Load(&account{})
		var ie *InitError
		if !errors.As(err, &ie) {
			t.Fatalf("load %d error = %v, want InitError", i, err)
		}
		if ie.Type != "account" || !errors.Is(err, cause) {
			t.Errorf("InitError = %v, want type account wrapping cause", ie)
		}
	}
	if got := inits.Load(); got != 1 {
		t.Errorf("failed initializer ran %d times, want 1", got)
	}
}
