package diag

import "testing"

func TestCategoryStringRoundTrip(t *testing.T) {
	cases := []struct {
		cat  Category
		want string
	}{
		{OutOfMemory, "OutOfMemory"},
		{AlignmentCheckFailed, "AlignmentCheckFailed"},
		{StackFrameLimitReached, "StackFrameLimitReached"},
		{Unimplemented, "Unimplemented"},
	}
	for _, c := range cases {
		if got := c.cat.String(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}

func TestRecoverableClassification(t *testing.T) {
	if !Unimplemented.Recoverable() {
		t.Error("Unimplemented should be recoverable")
	}
	if !UnimplementedIntrinsic.Recoverable() {
		t.Error("UnimplementedIntrinsic should be recoverable")
	}
	if OutOfMemory.Recoverable() {
		t.Error("OutOfMemory should not be recoverable")
	}
	if StackFrameLimitReached.Recoverable() {
		t.Error("StackFrameLimitReached should not be recoverable")
	}
}

func TestErrorMessageIncludesStructuredPayload(t *testing.T) {
	e := New(OutOfMemory, "").WithSpan(Span{Function: "main", Block: 2, Stmt: 3})
	e.AllocSize, e.MemSize, e.MemUsage = 64, 256, 200
	msg := e.Error()
	if msg == "" {
		t.Fatal("expected a non-empty message")
	}
	if want := "main@bb2[3]"; !contains(msg, want) {
		t.Errorf("message %q does not mention span %q", msg, want)
	}
}

func TestWithSpanAndWithStackDoNotMutateOriginal(t *testing.T) {
	base := New(Unsupported, "whatever")
	spanned := base.WithSpan(Span{Function: "f", Block: 1, Stmt: -1})
	if base.Span.Function != "" {
		t.Fatal("WithSpan must not mutate the receiver")
	}
	if spanned.Span.Function != "f" {
		t.Fatal("WithSpan must set the span on the copy")
	}

	stacked := spanned.WithStack([]Frame{{Function: "caller", Span: Span{Function: "caller"}}})
	if len(spanned.Stack) != 0 {
		t.Fatal("WithStack must not mutate the receiver")
	}
	if len(stacked.Stack) != 1 || stacked.Stack[0].Function != "caller" {
		t.Fatal("WithStack must attach the given stack to the copy")
	}
}

func TestCollectingReporterAccumulatesInOrder(t *testing.T) {
	var r CollectingReporter
	r.Report(New(OutOfMemory, "first"))
	r.Report(New(Unsupported, "second"))
	if len(r.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(r.Errors))
	}
	if r.Errors[0].Detail != "first" || r.Errors[1].Detail != "second" {
		t.Fatal("CollectingReporter must preserve report order")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
