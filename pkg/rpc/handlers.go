package rpc

import (
	"encoding/json"

	"github.com/githubbzxs/codex-switch/pkg/store"
)

type passwordParams struct {
	MasterPassword string `json:"master_password"`
}

type importParams struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type authFileParams struct {
	Path string   `json:"path"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type accountMetaParams struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type idParams struct {
	ID string `json:"id"`
}

type switchParams struct {
	ID           string `json:"id"`
	ForceRestart bool   `json:"force_restart"`
}

type historyParams struct {
	HistoryID string `json:"history_id"`
}

type limitParams struct {
	Limit *int `json:"limit"`
}

type refreshParams struct {
	AccountID string `json:"account_id"`
	Force     bool   `json:"force"`
}

type snapshotListParams struct {
	AccountID string `json:"account_id"`
	Limit     *int   `json:"limit"`
}

type policyParams struct {
	Policy store.QuotaPolicy `json:"policy"`
}

// dispatch routes one request to the facade. Every command returns either a
// structured result or a single error string.
func (s *Server) dispatch(req *Request) *Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, InvalidRequest, "invalid JSON-RPC request")
	}
	if s.log != nil {
		s.log.Debug("rpc request", "method", req.Method)
	}

	switch req.Method {
	case "init_vault":
		var params passwordParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.InitVault(params.MasterPassword) })

	case "unlock_vault":
		var params passwordParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.UnlockVault(params.MasterPassword) })

	case "lock_vault":
		return s.call(req, func() (any, error) { return s.app.LockVault() })

	case "vault_status":
		return s.call(req, func() (any, error) { return s.app.VaultStatus() })

	case "create_account_from_import", "import_current_codex_auth":
		var params importParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.CreateAccountFromImport(params.Name, params.Tags)
		})

	case "create_account_from_auth_file":
		var params authFileParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.CreateAccountFromAuthFile(params.Path, params.Name, params.Tags)
		})

	case "create_account_from_login":
		var params importParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.CreateAccountFromLogin(s.ctx, params.Name, params.Tags)
		})

	case "list_accounts":
		return s.call(req, func() (any, error) { return s.app.ListAccounts() })

	case "update_account_meta":
		var params accountMetaParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.UpdateAccountMeta(params.ID, params.Name, params.Tags)
		})

	case "delete_account":
		var params idParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.DeleteAccount(params.ID) })

	case "switch_account":
		var params switchParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.SwitchAccount(params.ID, params.ForceRestart)
		})

	case "rollback_to_history":
		var params historyParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.RollbackToHistory(params.HistoryID) })

	case "list_switch_history":
		var params limitParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.ListSwitchHistory(params.Limit) })

	case "refresh_quota":
		var params refreshParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.RefreshQuota(s.ctx, params.AccountID, params.Force)
		})

	case "get_quota_dashboard":
		return s.call(req, func() (any, error) { return s.app.GetQuotaDashboard() })

	case "list_quota_snapshots":
		var params snapshotListParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) {
			return s.app.ListQuotaSnapshots(params.AccountID, params.Limit)
		})

	case "set_quota_refresh_policy":
		var params policyParams
		if resp := s.decodeParams(req, &params); resp != nil {
			return resp
		}
		return s.call(req, func() (any, error) { return s.app.SetQuotaRefreshPolicy(params.Policy) })

	case "get_runtime_diagnostics":
		return s.call(req, func() (any, error) { return s.app.GetRuntimeDiagnostics() })

	case "get_codex_cli_status":
		return s.call(req, func() (any, error) { return s.app.GetCodexCliStatus() })

	default:
		return errorResponse(req.ID, MethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) decodeParams(req *Request, dest any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, dest); err != nil {
		return errorResponse(req.ID, InvalidParams, "invalid parameters: "+err.Error())
	}
	return nil
}

func (s *Server) call(req *Request, fn func() (any, error)) *Response {
	result, err := fn()
	if err != nil {
		if s.log != nil {
			s.log.Warn("rpc command failed", "method", req.Method, "error", err.Error())
		}
		return errorResponse(req.ID, InternalError, err.Error())
	}
	return resultResponse(req.ID, result)
}
