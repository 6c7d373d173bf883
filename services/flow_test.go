package services

import (
	"errors"
	"slices"
	"testing"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// runPreselection plays every pending preselection contest of the category in
// queue order with the given per-contestant scores and returns the last report.
func runPreselection(t *testing.T, env *testEnv, tournamentID, categoryID int, scores map[int]float64) *CompletionReport {
	t.Helper()
	var last *CompletionReport
	contests := env.contests(t, tournamentID, repositories.ContestFilter{
		CategoryID: intPtr(categoryID),
		Phase:      contestPhasePtr(models.ContestPhasePreselection),
	})
	for i, c := range contests {
		if _, err := env.engine.Queue.Activate(env.ctx, c.ID); err != nil {
			t.Fatalf("Activate preselection %d failed: %v", c.ID, err)
		}
		for _, id := range c.ParticipantIDs {
			if _, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, id, scores[id]); err != nil {
				t.Fatalf("RecordPreselectionScore failed: %v", err)
			}
		}
		report, err := env.engine.Outcomes.CompletePreselection(env.ctx, c.ID)
		if err != nil {
			t.Fatalf("CompletePreselection failed: %v", err)
		}
		if i < len(contests)-1 && report.Tiebreak != nil {
			t.Fatalf("tie detected before every preselection contest completed")
		}
		last = report
	}
	return last
}

func expectBlocked(t *testing.T, env *testEnv, tournamentID int, rule string) *ValidationError {
	t.Helper()
	_, err := env.engine.Phases.Advance(env.ctx, tournamentID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, r := range verr.Reasons {
		if r.Rule == rule {
			return verr
		}
	}
	t.Fatalf("expected rule %s among %+v", rule, verr.Reasons)
	return nil
}

func memberIndex(pool *models.Pool, id int) int {
	return slices.Index(pool.MemberIDs, id)
}

func TestTournamentFlowWithTies(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	category, ids := env.category(t, tournament.ID, "Solo", 2, 10)

	env.advance(t, tournament.ID, models.PhasePreselection)

	// capacity is 8: ids[7] and ids[8] share the boundary score for the last slot
	values := []float64{9.5, 9.0, 8.8, 8.5, 8.2, 8.0, 7.8, 7.5, 7.5, 6.0}
	scores := make(map[int]float64, len(ids))
	for i, id := range ids {
		scores[id] = values[i]
	}

	last := runPreselection(t, env, tournament.ID, category.ID, scores)
	if last.Tiebreak == nil {
		t.Fatalf("expected a cutoff tiebreak after the last preselection contest")
	}
	cutoff, err := last.Tiebreak.TiebreakOutcome()
	if err != nil {
		t.Fatalf("TiebreakOutcome failed: %v", err)
	}
	if cutoff.Reason != models.TiebreakReasonCutoff || cutoff.N != 2 || cutoff.P != 1 {
		t.Errorf("unexpected cutoff tiebreak %+v", cutoff)
	}
	if cutoff.BoundaryScore == nil || *cutoff.BoundaryScore != 7.5 {
		t.Errorf("expected boundary 7.50, got %v", cutoff.BoundaryScore)
	}
	if !slices.Equal(last.Tiebreak.ParticipantIDs, []int{ids[7], ids[8]}) {
		t.Errorf("unexpected tied contestants %v", last.Tiebreak.ParticipantIDs)
	}
	if env.events.count(EventTieDetected) != 1 {
		t.Errorf("expected one TieDetected event")
	}

	expectBlocked(t, env, tournament.ID, RuleUnresolvedTies)

	if _, err := env.engine.Queue.Activate(env.ctx, last.Tiebreak.ID); err != nil {
		t.Fatalf("Activate tiebreak failed: %v", err)
	}
	report, err := env.engine.Ties.SubmitRound(env.ctx, last.Tiebreak.ID, []brackets.Ballot{
		{Voter: "judge-1", TargetID: ids[7]},
		{Voter: "judge-2", TargetID: ids[8]},
	})
	if !errors.Is(err, ErrAmbiguousVote) {
		t.Fatalf("expected ErrAmbiguousVote, got %v", err)
	}
	if report == nil || report.Kind != models.VoteKindKeep || report.Resolved {
		t.Fatalf("unexpected ambiguous report %+v", report)
	}
	stored, err := env.repos.Contests.GetByID(env.ctx, nil, last.Tiebreak.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	kept, _ := stored.TiebreakOutcome()
	if kept.Round != 2 || len(kept.Votes) != 2 || len(kept.Remaining) != 2 {
		t.Errorf("ambiguous round must keep ballots and advance the round, got %+v", kept)
	}

	report, err = env.engine.Ties.SubmitRound(env.ctx, last.Tiebreak.ID, []brackets.Ballot{
		{Voter: "judge-1", TargetID: ids[8]},
		{Voter: "judge-2", TargetID: ids[8]},
		{Voter: "judge-3", TargetID: ids[7]},
	})
	if err != nil {
		t.Fatalf("SubmitRound failed: %v", err)
	}
	if !report.Resolved || !slices.Equal(report.Winners, []int{ids[8]}) {
		t.Fatalf("expected %d to keep the slot, got %+v", ids[8], report)
	}

	res := env.advance(t, tournament.ID, models.PhasePools)
	if res.Generated != 12 {
		t.Errorf("expected 12 pool contests for two pools of four, got %d", res.Generated)
	}

	pools, err := env.repos.Pools.ListByCategory(env.ctx, nil, category.ID)
	if err != nil {
		t.Fatalf("ListByCategory failed: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	for _, p := range pools {
		if len(p.MemberIDs) != 4 {
			t.Errorf("pool %d has %d members", p.Number, len(p.MemberIDs))
		}
		if p.HasMember(ids[7]) || p.HasMember(ids[9]) {
			t.Errorf("eliminated contestant seated in pool %d", p.Number)
		}
	}
	if !pools[0].HasMember(ids[0]) || !pools[1].HasMember(ids[1]) {
		t.Errorf("top seeds must head separate pools: %v %v", pools[0].MemberIDs, pools[1].MemberIDs)
	}

	// pool 1: the first two members draw and beat everyone else; pool 2: the lower index always wins
	poolByID := map[int]*models.Pool{pools[0].ID: pools[0], pools[1].ID: pools[1]}
	poolContests := env.contests(t, tournament.ID, repositories.ContestFilter{Phase: contestPhasePtr(models.ContestPhasePool)})
	var poolTie *models.Contest
	for _, c := range poolContests {
		pool := poolByID[*c.PoolID]
		a, b := c.ParticipantIDs[0], c.ParticipantIDs[1]
		if memberIndex(pool, b) < memberIndex(pool, a) {
			a, b = b, a
		}
		input := PoolResultInput{WinnerID: intPtr(a)}
		if pool.ID == pools[0].ID && memberIndex(pool, a) == 0 && memberIndex(pool, b) == 1 {
			input = PoolResultInput{Draw: true}
		}

		if _, err := env.engine.Queue.Activate(env.ctx, c.ID); err != nil {
			t.Fatalf("Activate pool contest %d failed: %v", c.ID, err)
		}
		report, err := env.engine.Outcomes.RecordPoolOutcome(env.ctx, c.ID, input)
		if err != nil {
			t.Fatalf("RecordPoolOutcome failed: %v", err)
		}
		if report.Tiebreak != nil {
			poolTie = report.Tiebreak
		}
	}

	if poolTie == nil {
		t.Fatalf("expected a pool tiebreak for pool %d", pools[0].Number)
	}
	if *poolTie.PoolID != pools[0].ID || !slices.Equal(poolTie.ParticipantIDs, pools[0].MemberIDs[:2]) {
		t.Errorf("unexpected pool tiebreak %+v", poolTie)
	}
	decided, err := env.repos.Pools.GetByID(env.ctx, nil, pools[1].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if decided.WinnerID == nil || *decided.WinnerID != pools[1].MemberIDs[0] {
		t.Errorf("expected pool %d won by %d, got %v", decided.Number, pools[1].MemberIDs[0], decided.WinnerID)
	}

	verr := expectBlocked(t, env, tournament.ID, RulePoolWinners)
	if len(verr.Reasons) != 2 {
		t.Errorf("expected unresolved ties and missing pool winner, got %+v", verr.Reasons)
	}

	if _, err := env.engine.Queue.Activate(env.ctx, poolTie.ID); err != nil {
		t.Fatalf("Activate pool tiebreak failed: %v", err)
	}
	poolWinner := pools[0].MemberIDs[1]
	if _, err := env.engine.Ties.SubmitRound(env.ctx, poolTie.ID, []brackets.Ballot{{Voter: "judge-1", TargetID: poolWinner}}); err != nil {
		t.Fatalf("SubmitRound failed: %v", err)
	}

	res = env.advance(t, tournament.ID, models.PhaseFinals)
	if res.Generated != 1 {
		t.Fatalf("expected one final, got %d", res.Generated)
	}
	finals := env.contests(t, tournament.ID, repositories.ContestFilter{Phase: contestPhasePtr(models.ContestPhaseFinal)})
	final := finals[0]
	if !final.HasParticipant(poolWinner) || !final.HasParticipant(pools[1].MemberIDs[0]) {
		t.Errorf("final must pair the pool winners, got %v", final.ParticipantIDs)
	}

	if _, err := env.engine.Outcomes.RecordFinalOutcome(env.ctx, final.ID, FinalResultInput{Draw: true}); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for a drawn final, got %v", err)
	}
	if _, err := env.engine.Queue.Activate(env.ctx, final.ID); err != nil {
		t.Fatalf("Activate final failed: %v", err)
	}
	champion := pools[1].MemberIDs[0]
	finalReport, err := env.engine.Outcomes.RecordFinalOutcome(env.ctx, final.ID, FinalResultInput{WinnerID: intPtr(champion)})
	if err != nil {
		t.Fatalf("RecordFinalOutcome failed: %v", err)
	}
	if finalReport.ChampionID == nil || *finalReport.ChampionID != champion {
		t.Errorf("unexpected champion %v", finalReport.ChampionID)
	}

	env.advance(t, tournament.ID, models.PhaseCompleted)

	storedCategory, err := env.repos.Categories.GetByID(env.ctx, nil, category.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if storedCategory.ChampionID == nil || *storedCategory.ChampionID != champion {
		t.Errorf("category champion not recorded: %v", storedCategory.ChampionID)
	}

	if _, err := env.engine.Phases.Advance(env.ctx, tournament.ID); !errors.Is(err, ErrTournamentLocked) {
		t.Errorf("expected ErrTournamentLocked on advance, got %v", err)
	}
	if _, err := env.engine.Registration.RegisterContestant(env.ctx, category.ID, RegisterContestantInput{DisplayName: "After the end"}); !errors.Is(err, ErrTournamentLocked) {
		t.Errorf("expected ErrTournamentLocked on registration, got %v", err)
	}
	if _, err := env.engine.Queue.Activate(env.ctx, final.ID); !errors.Is(err, ErrTournamentLocked) {
		t.Errorf("expected ErrTournamentLocked on activation, got %v", err)
	}

	standings, err := env.engine.Overview.ListStandings(env.ctx, category.ID)
	if err != nil {
		t.Fatalf("ListStandings failed: %v", err)
	}
	if len(standings) != 10 || standings[0].Rank != 1 {
		t.Errorf("unexpected standings %+v", standings)
	}
}

func TestRecordOnPendingContestIsRejected(t *testing.T) {
	env := newTestEnv(t)
	_, queue := preselectionQueue(t, env, 6)

	c := queue[0]
	_, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, c.ParticipantIDs[0], 8)
	if !errors.Is(err, ErrContestNotActive) || !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrContestNotActive, got %v", err)
	}
	if _, err := env.engine.Outcomes.CompletePreselection(env.ctx, c.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if _, err := env.engine.Outcomes.RecordPoolOutcome(env.ctx, c.ID, PoolResultInput{Draw: true}); !errors.Is(err, ErrWrongContestPhase) {
		t.Errorf("expected ErrWrongContestPhase, got %v", err)
	}
}

func TestPreselectionScoreValidation(t *testing.T) {
	env := newTestEnv(t)
	_, queue := preselectionQueue(t, env, 6)
	c := queue[0]
	if _, err := env.engine.Queue.Activate(env.ctx, c.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if _, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, c.ParticipantIDs[0], 10.5); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for 10.5, got %v", err)
	}
	if _, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, queue[1].ParticipantIDs[0], 7); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for a foreign contestant, got %v", err)
	}
	if _, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, c.ParticipantIDs[0], 7); err != nil {
		t.Fatalf("RecordPreselectionScore failed: %v", err)
	}
	// second contestant has no input yet
	if _, err := env.engine.Outcomes.CompletePreselection(env.ctx, c.ID); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome, got %v", err)
	}

	stored, err := env.repos.Contests.GetByID(env.ctx, nil, c.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != models.ContestStatusActive {
		t.Errorf("failed completion must leave the contest ACTIVE, got %s", stored.Status)
	}
}

func TestPreselectionAveragesJudgeInputs(t *testing.T) {
	env := newTestEnv(t)
	tournament, queue := preselectionQueue(t, env, 5)
	c := queue[0]
	if _, err := env.engine.Queue.Activate(env.ctx, c.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	first := c.ParticipantIDs[0]
	for _, id := range c.ParticipantIDs {
		for _, score := range []float64{7, 8, 8} {
			if _, err := env.engine.Outcomes.RecordPreselectionScore(env.ctx, c.ID, id, score); err != nil {
				t.Fatalf("RecordPreselectionScore failed: %v", err)
			}
		}
	}
	if _, err := env.engine.Outcomes.CompletePreselection(env.ctx, c.ID); err != nil {
		t.Fatalf("CompletePreselection failed: %v", err)
	}

	stats, err := env.repos.Stats.GetOrCreate(env.ctx, nil, c.CategoryID, first)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if stats.PreselectionScore == nil || *stats.PreselectionScore != 7.67 {
		t.Errorf("expected averaged score 7.67, got %v", stats.PreselectionScore)
	}
	if env.events.count(EventContestCompleted) != 1 {
		t.Errorf("expected one ContestCompleted event")
	}
	if n := len(env.contests(t, tournament.ID, repositories.ContestFilter{Phase: contestPhasePtr(models.ContestPhaseTiebreak)})); n != 0 {
		t.Errorf("no tie check may run while preselection is incomplete, found %d tiebreaks", n)
	}
}

// seedPool builds a completed pool directly in storage so that any point
// distribution can be checked, including ones a real round robin cannot yield.
func seedPool(t *testing.T, env *testEnv, points []int) (*models.Pool, []int) {
	t.Helper()
	tournament := env.tournament(t)
	category, ids := env.category(t, tournament.ID, "Solo", 1, len(points))
	err := env.repos.Tx.WithinTx(env.ctx, func(exec repositories.SQLExecutor) error {
		if err := env.repos.Tournaments.UpdatePhase(env.ctx, exec, tournament.ID, models.PhaseRegistration, models.PhasePools); err != nil {
			return err
		}
		for i, id := range ids {
			st, err := env.repos.Stats.GetOrCreate(env.ctx, exec, category.ID, id)
			if err != nil {
				return err
			}
			st.Wins = points[i] / models.PointsPerWin
			st.Draws = points[i] % models.PointsPerWin
			if err := env.repos.Stats.Update(env.ctx, exec, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding stats failed: %v", err)
	}

	pool := &models.Pool{CategoryID: category.ID, Number: 1, MemberIDs: ids}
	if err := env.repos.Pools.Create(env.ctx, nil, pool); err != nil {
		t.Fatalf("Pools.Create failed: %v", err)
	}
	contest := &models.Contest{
		TournamentID:     tournament.ID,
		CategoryID:       category.ID,
		PoolID:           &pool.ID,
		Phase:            models.ContestPhasePool,
		ParticipantIDs:   ids[:2],
		SequencePosition: 1,
	}
	if err := env.repos.Contests.Create(env.ctx, nil, contest); err != nil {
		t.Fatalf("Contests.Create failed: %v", err)
	}
	if err := env.repos.Contests.Activate(env.ctx, nil, contest.ID); err != nil {
		t.Fatalf("Contests.Activate failed: %v", err)
	}
	contest.Status = models.ContestStatusActive
	contest.Outcome = &models.PoolOutcome{WinnerID: &ids[0]}
	if err := env.repos.Contests.Complete(env.ctx, nil, contest); err != nil {
		t.Fatalf("Contests.Complete failed: %v", err)
	}
	return pool, ids
}

func TestDetectPoolTieOpensTiebreakForLeaders(t *testing.T) {
	env := newTestEnv(t)
	pool, ids := seedPool(t, env, []int{9, 9, 6, 3})

	tiebreak, err := env.engine.Ties.DetectPoolTie(env.ctx, pool.ID)
	if err != nil {
		t.Fatalf("DetectPoolTie failed: %v", err)
	}
	if tiebreak == nil {
		t.Fatalf("expected a tiebreak between the two leaders")
	}
	outcome, err := tiebreak.TiebreakOutcome()
	if err != nil {
		t.Fatalf("TiebreakOutcome failed: %v", err)
	}
	if outcome.Reason != models.TiebreakReasonPool || outcome.N != 2 || outcome.P != 1 {
		t.Errorf("unexpected tiebreak %+v", outcome)
	}
	if !slices.Equal(tiebreak.ParticipantIDs, ids[:2]) {
		t.Errorf("expected leaders %v, got %v", ids[:2], tiebreak.ParticipantIDs)
	}
	if tiebreak.SequencePosition != 2 {
		t.Errorf("tiebreak must be appended to the queue, got position %d", tiebreak.SequencePosition)
	}

	again, err := env.engine.Ties.DetectPoolTie(env.ctx, pool.ID)
	if err != nil {
		t.Fatalf("DetectPoolTie failed: %v", err)
	}
	if again == nil || again.ID != tiebreak.ID {
		t.Errorf("repeated detection must return the existing tiebreak")
	}
	if env.events.count(EventTieDetected) != 1 {
		t.Errorf("expected exactly one TieDetected event")
	}
}

func TestDetectPoolTieSingleLeaderWins(t *testing.T) {
	env := newTestEnv(t)
	pool, ids := seedPool(t, env, []int{6, 9, 3, 0})

	tiebreak, err := env.engine.Ties.DetectPoolTie(env.ctx, pool.ID)
	if err != nil {
		t.Fatalf("DetectPoolTie failed: %v", err)
	}
	if tiebreak != nil {
		t.Errorf("no tiebreak expected with a single leader")
	}
	stored, err := env.repos.Pools.GetByID(env.ctx, nil, pool.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.WinnerID == nil || *stored.WinnerID != ids[1] {
		t.Errorf("expected winner %d, got %v", ids[1], stored.WinnerID)
	}
}
