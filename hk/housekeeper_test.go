package hk_test

import (
	"time"

	"github.com/Kronuz/Xapiand-sub007/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	AfterEach(func() {
		hk.Unreg("a")
		hk.Unreg("b")
	})

	It("fires a registered callback after its interval", func() {
		fired := make(chan struct{}, 1)
		hk.Reg("a", func() time.Duration {
			fired <- struct{}{}
			return 0 // unregister after firing once
		}, 10*time.Millisecond)

		Eventually(fired, time.Second).Should(Receive())
	})

	It("reschedules a callback that returns a positive duration", func() {
		fired := make(chan struct{}, 4)
		hk.Reg("b", func() time.Duration {
			fired <- struct{}{}
			return 10 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(func() int { return len(fired) }, time.Second).Should(BeNumerically(">=", 2))
	})

	It("stops firing once unregistered", func() {
		fired := make(chan struct{}, 16)
		hk.Reg("a", func() time.Duration {
			fired <- struct{}{}
			return 10 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(fired, time.Second).Should(Receive())
		hk.Unreg("a")

		for len(fired) > 0 {
			<-fired
		}
		Consistently(fired, 100*time.Millisecond).ShouldNot(Receive())
	})
})
