package codegen

import (
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// BaselineModelGenerator trains a logistic regression classifier with a
// fixed solver. It is the only supported model family in the current scope;
// the interface allows future families (CNNs and similar) without changing
// the notebook builder.
type BaselineModelGenerator struct{}

func (BaselineModelGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"import json",
		"import time",
		"from sklearn.linear_model import LogisticRegression",
		"from sklearn.metrics import accuracy_score, f1_score, log_loss",
	}
}

func (BaselineModelGenerator) Code(plan *entities.PlanDocument) string {
	epochs := plan.Config.Epochs
	if epochs <= 0 {
		epochs = 10
	}
	metrics := append([]string{plan.Metrics.Primary}, plan.Metrics.Secondary...)
	metricLoggers := ""
	for _, m := range metrics {
		if m == "" {
			continue
		}
		metricLoggers += fmt.Sprintf(`log_event("metric_update", {"name": %q, "value": metric_values.get(%q)})
`, m, m)
	}
	return fmt.Sprintf(`clf = LogisticRegression(solver="lbfgs", max_iter=%d, random_state=SEED)
train_start = time.time()
clf.fit(X_train, y_train)
log_event("training_complete", {"duration_seconds": time.time() - train_start})

y_pred = clf.predict(X_test)
metric_values = {
    "accuracy": accuracy_score(y_test, y_pred),
    "f1": f1_score(y_test, y_pred, average="weighted"),
}
try:
    y_proba = clf.predict_proba(X_test)
    metric_values["log_loss"] = log_loss(y_test, y_proba)
except Exception:
    pass

with open("metrics.json", "w") as f:
    json.dump(metric_values, f)

log_event("evaluation_complete", {"metrics": metric_values})
%s`, epochs*100, metricLoggers)
}

func (BaselineModelGenerator) Requirements(*entities.PlanDocument) []string {
	return nil // covered by the base scikit-learn pin
}
