package rx_test

import (
	"errors"
	"testing"

	"github.com/srg/rxble/pkg/rx"
	"github.com/stretchr/testify/suite"
)

type ShareTestSuite struct {
	suite.Suite
}

func TestShareTestSuite(t *testing.T) {
	suite.Run(t, new(ShareTestSuite))
}

func (suite *ShareTestSuite) TestRefCountConnectsOnceAndReleasesOnLastUnsubscribe() {
	// GOAL: Verify the upstream is subscribed once for concurrent subscribers and released when the last leaves
	//
	// TEST SCENARIO: Two subscribers → one upstream subscription → both see values → both cancel → upstream disposed once

	src := &subject[int]{}
	connects, releases := 0, 0
	shared := rx.RefCount(src.stream(), rx.ShareHooks[int]{
		OnConnect: func() { connects++ },
		OnRelease: func() { releases++ },
	})

	r1, r2 := &recorder[int]{}, &recorder[int]{}
	s1 := shared.Subscribe(r1)
	s2 := shared.Subscribe(r2)
	suite.Equal(1, connects, "upstream MUST be connected once")
	suite.Len(src.subs, 1)

	src.next(1)
	suite.Equal([]int{1}, r1.values)
	suite.Equal([]int{1}, r2.values)

	s1.Cancel()
	suite.Len(src.subs, 1, "upstream MUST stay connected while a subscriber remains")
	suite.Equal(0, releases)

	s2.Cancel()
	suite.Empty(src.subs, "upstream MUST be disposed after the last subscriber leaves")
	suite.Equal(1, releases)
}

func (suite *ShareTestSuite) TestRefCountUpstreamErrorReachesAll() {
	src := &subject[int]{}
	releases := 0
	shared := rx.RefCount(src.stream(), rx.ShareHooks[int]{OnRelease: func() { releases++ }})

	r1, r2 := &recorder[int]{}, &recorder[int]{}
	shared.Subscribe(r1)
	shared.Subscribe(r2)

	boom := errors.New("upstream failed")
	src.fail(boom)

	suite.ErrorIs(r1.err, boom)
	suite.ErrorIs(r2.err, boom)
	suite.Equal(1, releases, "release MUST run exactly once")
}

func (suite *ShareTestSuite) TestRefCountReconnectsWithoutExpiredHook() {
	subscriptions := 0
	shared := rx.Share(rx.Create(func(s *rx.Subscriber[int]) func() {
		subscriptions++
		return nil
	}))

	shared.Subscribe(&recorder[int]{}).Cancel()
	shared.Subscribe(&recorder[int]{}).Cancel()
	suite.Equal(2, subscriptions, "a released share MUST reconnect for new subscribers")
}

func (suite *ShareTestSuite) TestRefCountExpiredHookServesLateSubscribers() {
	// GOAL: Verify a released share with an Expired hook never reconnects its upstream
	//
	// TEST SCENARIO: Subscribe and cancel → subscribe again → Expired stream serves it

	subscriptions := 0
	shared := rx.RefCount(rx.Create(func(s *rx.Subscriber[int]) func() {
		subscriptions++
		return nil
	}), rx.ShareHooks[int]{
		Expired: func() rx.Stream[int] { return rx.Just(42) },
	})

	shared.Subscribe(&recorder[int]{}).Cancel()
	late := &recorder[int]{}
	shared.Subscribe(late)

	suite.Equal(1, subscriptions, "retired upstream MUST NOT be reconnected")
	suite.Equal([]int{42}, late.values)
	suite.True(late.completed)
}

func (suite *ShareTestSuite) TestRefCountSynchronousUpstream() {
	r := &recorder[int]{}
	releases := 0
	rx.RefCount(rx.Just(1, 2), rx.ShareHooks[int]{OnRelease: func() { releases++ }}).Subscribe(r)

	suite.Equal([]int{1, 2}, r.values)
	suite.True(r.completed)
	suite.Equal(1, releases)
}
