package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/service"
	"github.com/qmsuite/correlative/internal/testutil"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/stretchr/testify/suite"
)

type CLISuite struct {
	testutil.BaseServiceTestSuite
	connect Connector
}

func TestCLI(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	params := service.ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		Cache:            s.GetCache(),
		Sentry:           s.GetSentry(),
		Clock:            s.Clock(),
		NumberingRepo:    s.GetStores().NumberingRepo,
		NumberingLogRepo: s.GetStores().NumberingLogRepo,
	}
	svc := &Services{
		Numbering: service.NewNumberingService(params),
		Reset:     service.NewNumberingResetService(params),
	}
	s.connect = func(context.Context) (*Services, func(), error) {
		return svc, func() {}, nil
	}
}

func (s *CLISuite) run(args ...string) (string, error) {
	cmd := newRootCommand(&RootOptions{Connect: s.connect})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(s.GetContext())
	return out.String(), err
}

func (s *CLISuite) TestGenerateIssuesSequentialCodes() {
	args := []string{"generate", "--tenant", "tenant_qms", "--entity-type", "audit", "--prefix", "AUD",
		"--template", "AUD-{año}-{numero}", "--reset-annual"}

	out, err := s.run(args...)
	s.Require().NoError(err)
	s.Equal("AUD-2024-0001\nnext: AUD-2024-0002\n", out)

	out, err = s.run(args...)
	s.Require().NoError(err)
	s.Contains(out, "AUD-2024-0002")
}

func (s *CLISuite) TestPreviewDoesNotConsume() {
	_, err := s.run("generate", "--tenant", "tenant_qms", "--entity-type", "meeting", "--prefix", "MTG")
	s.Require().NoError(err)

	out, err := s.run("--format", "json", "generate", "--tenant", "tenant_qms", "--entity-type", "meeting", "--prefix", "MTG", "--preview")
	s.Require().NoError(err)

	var preview dto.PreviewResponse
	s.Require().NoError(json.Unmarshal([]byte(out), &preview))
	s.Equal("MTG-0002", preview.Code)

	out, err = s.run("generate", "--tenant", "tenant_qms", "--entity-type", "meeting", "--prefix", "MTG")
	s.Require().NoError(err)
	s.Contains(out, "MTG-0002\n")
}

func (s *CLISuite) TestGenerateSubCode() {
	out, err := s.run("generate", "--tenant", "tenant_qms", "--entity-type", "finding", "--prefix", "H", "--parent", "REV-2024-0007")
	s.Require().NoError(err)
	s.Equal("REV-2024-0007.H0001\n", out)
}

func (s *CLISuite) TestGenerateRequiresFlags() {
	_, err := s.run("generate", "--entity-type", "audit", "--prefix", "AUD")
	s.Error(err)
	s.Zero(s.GetStores().NumberingRepo.Calls(testutil.OpGetOrCreate))
}

func (s *CLISuite) TestScopesListJSON() {
	for _, prefix := range []string{"ACT", "ACX"} {
		_, err := s.run("generate", "--tenant", "tenant_qms", "--entity-type", "action", "--prefix", prefix)
		s.Require().NoError(err)
	}
	_, err := s.run("generate", "--tenant", "tenant_qms", "--entity-type", "meeting", "--prefix", "MTG")
	s.Require().NoError(err)

	out, err := s.run("--format", "json", "scopes", "list", "--tenant", "tenant_qms", "--entity-type", "action")
	s.Require().NoError(err)

	var resp dto.ListScopesResponse
	s.Require().NoError(json.Unmarshal([]byte(out), &resp))
	s.Equal(2, resp.Total)
}

func (s *CLISuite) TestResetTenant() {
	args := []string{"generate", "--tenant", "tenant_qms", "--entity-type", "audit", "--prefix", "AUD",
		"--template", "AUD-{año}-{numero}", "--reset-annual"}
	_, err := s.run(args...)
	s.Require().NoError(err)

	out, err := s.run("--format", "json", "reset", "annual", "--tenant", "tenant_qms")
	s.Require().NoError(err)

	var result dto.ResetResult
	s.Require().NoError(json.Unmarshal([]byte(out), &result))
	s.Equal(types.ResetPolicyAnnual, result.Policy)
	s.Equal(1, result.CountersReset)

	out, err = s.run(args...)
	s.Require().NoError(err)
	s.Contains(out, "AUD-2024-0001\n")
}

func (s *CLISuite) TestResetAllTenantsText() {
	for _, tenant := range []string{"tenant_a", "tenant_b"} {
		_, err := s.run("generate", "--tenant", tenant, "--entity-type", "audit", "--prefix", "AUD", "--reset-monthly")
		s.Require().NoError(err)
	}

	out, err := s.run("reset", "monthly")
	s.Require().NoError(err)
	s.Contains(out, "tenant_a")
	s.Contains(out, "tenant_b")
	s.Contains(out, "2 tenants, 2 counters reset, 0 tenants failed")
}

func (s *CLISuite) TestRejectsUnknownPolicyAndFormat() {
	_, err := s.run("reset", "weekly")
	s.Error(err)

	_, err = s.run("--format", "yaml", "scopes", "list", "--tenant", "tenant_qms")
	s.Error(err)
}
