//go:build integration

package integration

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/zenlauncher/gatekeeper/internal/domain"
	"github.com/zenlauncher/gatekeeper/internal/focus"
	"github.com/zenlauncher/gatekeeper/internal/infra"
	"github.com/zenlauncher/gatekeeper/internal/usecase"
)

var _ = Describe("Gatekeeper Engine", func() {
	var (
		tmpDir string
		store  *infra.Store
		fm     *focus.Manager
		facade *usecase.Facade
		now    time.Time
	)

	const (
		selfID    = domain.AppID("com.zenlauncher.gatekeeper")
		dialerID  = domain.AppID("com.android.dialer")
		socialID  = domain.AppID("com.instagram.android")
		readerID  = domain.AppID("com.example.reader")
		unknownID = domain.AppID("com.example.freshinstall")
	)

	newFacade := func() *usecase.Facade {
		var err error
		fm, err = focus.NewManager(store, store, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return usecase.NewFacade(fm, store, store, store, store, store,
			selfID, []domain.AppID{dialerID}, zap.NewNop())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "gatekeeper-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.NewKeyring(tmpDir).Key()
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())

		facade = newFacade()
		now = time.Now()
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Policy enforcement", func() {
		Context("with a category daily limit", func() {
			BeforeEach(func() {
				Expect(store.Assign(domain.Category{
					AppID: socialID,
					Kind:  domain.CategoryDistracting,
				})).To(Succeed())
				Expect(store.PutRule(
					domain.CategoryTarget(domain.CategoryDistracting),
					domain.DailyLimit{Minutes: 30},
				)).To(Succeed())
			})

			It("allows until usage reaches the limit, then blocks", func() {
				v, err := facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeTrue())

				Expect(facade.RecordUsage(socialID, 30*time.Minute, now)).To(Succeed())

				v, err = facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeFalse())
				Expect(v.Decision.Reason).To(Equal(domain.ReasonDailyLimitExceeded))
			})

			It("lets an app-specific limit override the category limit", func() {
				Expect(store.PutRule(
					domain.AppTarget(socialID),
					domain.DailyLimit{Minutes: 60},
				)).To(Succeed())
				Expect(facade.RecordUsage(socialID, 45*time.Minute, now)).To(Succeed())

				v, err := facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeTrue())
			})
		})

		Context("with productivity mode active", func() {
			BeforeEach(func() {
				Expect(store.Assign(domain.Category{
					AppID: socialID,
					Kind:  domain.CategoryDistracting,
				})).To(Succeed())
				Expect(store.SetMode(domain.ModeProductivity)).To(Succeed())
			})

			It("escalates distracting apps to a strict block", func() {
				v, err := facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeFalse())
				Expect(v.Decision.Reason).To(Equal(domain.ReasonStrict))
			})

			It("exempts whitelisted apps from the escalation", func() {
				Expect(store.SetWhitelisted(socialID, true)).To(Succeed())

				v, err := facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeTrue())
			})
		})

		Context("with emergency mode active", func() {
			It("allows everything regardless of rules", func() {
				Expect(store.PutRule(domain.AppTarget(socialID), domain.StrictBlock{})).To(Succeed())
				Expect(store.SetMode(domain.ModeEmergency)).To(Succeed())

				v, err := facade.CheckForeground(socialID, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Decision.Allowed).To(BeTrue())
			})
		})

		It("fails open for apps the classifier has not seen", func() {
			Expect(store.PutRule(
				domain.CategoryTarget(domain.CategoryDistracting),
				domain.StrictBlock{},
			)).To(Succeed())

			v, err := facade.CheckForeground(unknownID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeTrue())
		})
	})

	Describe("Focus sessions", func() {
		BeforeEach(func() {
			Expect(fm.Start(domain.LockRandomPhrase, []domain.AppID{readerID}, now)).To(Succeed())
		})

		It("governs access by allow-list membership, not rules", func() {
			v, err := facade.CheckForeground(readerID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeTrue())
			Expect(v.Source).To(Equal(domain.SourceFocus))

			v, err = facade.CheckForeground(socialID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeFalse())
			Expect(v.Decision.Reason).To(Equal(domain.ReasonFocusSession))
		})

		It("keeps essential apps and the engine itself reachable", func() {
			v, err := facade.CheckForeground(dialerID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeTrue())

			v, err = facade.CheckForeground(selfID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeTrue())
		})

		It("survives a restart mid-session", func() {
			facade = newFacade()

			Expect(fm.State()).To(Equal(domain.FocusActive))
			v, err := facade.CheckForeground(socialID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Decision.Allowed).To(BeFalse())
		})

		It("survives a restart mid-pause without refreshing the budget", func() {
			_, err := fm.RequestPause(now)
			Expect(err).NotTo(HaveOccurred())

			facade = newFacade()
			Expect(fm.State()).To(Equal(domain.FocusPaused))

			resumed, err := facade.TickPause(now.Add(focus.PauseAllowance))
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed).To(BeTrue())
			Expect(fm.Snapshot().PauseBudgetRemaining).To(BeZero())
		})

		It("completes the unlock ritual", func() {
			phrase := fm.Snapshot().SessionPhrase
			Expect(phrase).NotTo(BeEmpty())

			Expect(fm.RequestUnlock()).To(Succeed())
			Expect(fm.ConfirmUnlock("wrong")).To(MatchError(focus.ErrIncorrectCredential))
			Expect(fm.ConfirmUnlock(phrase)).To(Succeed())
			Expect(fm.State()).To(Equal(domain.FocusInactive))

			// Back on the policy path.
			v, err := facade.CheckForeground(socialID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Source).To(Equal(domain.SourcePolicy))
		})
	})

	Describe("Audit trail", func() {
		It("records decisions from both sources, newest first", func() {
			_, err := facade.CheckForeground(socialID, now)
			Expect(err).NotTo(HaveOccurred())

			Expect(fm.Start(domain.LockRandomPhrase, nil, now)).To(Succeed())
			_, err = facade.CheckForeground(socialID, now.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())

			entries, err := store.Recent(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(entries)).To(BeNumerically(">=", 3))

			sources := map[domain.DecisionSource]bool{}
			for _, e := range entries {
				sources[e.Source] = true
			}
			Expect(sources).To(HaveKey(domain.SourcePolicy))
			Expect(sources).To(HaveKey(domain.SourceFocus))
			Expect(sources).To(HaveKey(domain.SourceTransition))
		})
	})
})
