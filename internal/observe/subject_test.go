package observe

import "testing"

func TestSubjectPublishesInRegistrationOrder(t *testing.T) {
	var s Subject[int]
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })
	s.Publish(1)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected delivery order %v", got)
	}
}

func TestSubjectUnsubscribe(t *testing.T) {
	var s Subject[string]
	calls := 0

	unsubscribe := s.Subscribe(func(string) { calls++ })
	s.Publish("x")
	unsubscribe()
	unsubscribe()
	s.Publish("y")

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Len())
	}
}

func TestSubjectSubscriberMaySubscribeDuringPublish(t *testing.T) {
	var s Subject[int]
	inner := 0

	s.Subscribe(func(int) {
		s.Subscribe(func(int) { inner++ })
	})
	s.Publish(1)
	if inner != 0 {
		t.Fatalf("subscriber added during publish must not see the same value")
	}
	s.Publish(2)
	if inner != 1 {
		t.Fatalf("expected late subscriber to receive the next value, got %d", inner)
	}
}
